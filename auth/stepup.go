package auth

import (
	"context"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/pkg/errors"
)

const factorStepUpOTP = "STEP_UP_OTP"

var errStepUpDisabled = apperrors.New(apperrors.KindNotFound, apperrors.CodeInvalidRequest, "step-up is not enabled")

// RequestStepUpOtp sends a one-time code to the destination.
func (s *Service) RequestStepUpOtp(ctx context.Context, userID string, req StepUpOtpRequest) (*StepUpChallenge, error) {
	if s.mfa == nil {
		return nil, errStepUpDisabled
	}
	channel := strings.ToUpper(strings.TrimSpace(req.Channel))
	if channel != mfa.ChannelSMS && channel != mfa.ChannelEmail {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "channel must be SMS or EMAIL").WithDetail("channel", req.Channel)
	}
	if strings.TrimSpace(req.Destination) == "" || strings.TrimSpace(req.Purpose) == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "purpose and destination are required")
	}

	issued, err := s.mfa.IssueOTP(ctx, mfa.OTPRequest{
		Subject:     userID,
		Factor:      factorStepUpOTP,
		Purpose:     req.Purpose,
		Channel:     channel,
		Destination: strings.TrimSpace(req.Destination),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestStepUpOtp] issue code")
	}
	return &StepUpChallenge{
		ChallengeID: issued.ChallengeID,
		ExpiresIn:   issued.ExpiresIn,
		ResendAfter: issued.ResendAfter,
	}, nil
}

// VerifyStepUpOtp checks the code and returns a step-up token.
func (s *Service) VerifyStepUpOtp(ctx context.Context, userID, challengeID, otp string) (*StepUpResult, error) {
	if s.mfa == nil {
		return nil, errStepUpDisabled
	}
	if strings.TrimSpace(challengeID) == "" || strings.TrimSpace(otp) == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "challengeId and otp are required")
	}
	challenge, err := s.mfa.VerifyOTP(ctx, challengeID, userID, otp)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyStepUpOtp] verify code")
	}
	token, expiresAt, err := s.stepUp.Issue(userID, challenge.Purpose, challenge.ID)
	if err != nil {
		return nil, err
	}
	return &StepUpResult{Verified: true, StepUpToken: token, ExpiresAt: expiresAt}, nil
}
