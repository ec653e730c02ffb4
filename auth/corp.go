package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-gateway/authflow"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var errCorpDisabled = apperrors.New(apperrors.KindNotFound, apperrors.CodeInvalidRequest, "corporate login is not enabled")

// InitCorpLogin opens a corporate login flow for email.
func (s *Service) InitCorpLogin(ctx context.Context, email, deviceInfo string) (*CorpLoginStart, error) {
	if s.mfa == nil {
		return nil, errCorpDisabled
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "a valid email address is required")
	}
	if !s.cfg.CorpMembers.Allows(addr.Address) {
		log.Warn().Str("device", deviceInfo).Msg("corporate login refused for non-staff address")
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied, "corporate login is restricted to staff accounts")
	}

	factors := []string{mfa.FactorTOTP, mfa.FactorEmailOTP}
	if s.mfa.PasskeyEnabled() {
		factors = append([]string{mfa.FactorPasskey}, factors...)
	}
	now := s.nowTime()
	flow := &authflow.CorpFlowState{
		FlowID:         mfa.NewID(now),
		Email:          strings.ToLower(addr.Address),
		DeviceInfo:     deviceInfo,
		AllowedFactors: factors,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.FlowTTL),
	}
	if err := s.repos.CorpFlows.Save(ctx, flow); err != nil {
		return nil, errors.Wrap(err, "[Service.InitCorpLogin] save flow")
	}
	return &CorpLoginStart{
		LoginFlowID:    flow.FlowID,
		AllowedFactors: factors,
		RequiresStepUp: true,
		ExpiresIn:      int64(s.cfg.FlowTTL / time.Second),
	}, nil
}

// VerifyCorpLogin reports the state of a live corporate flow.
func (s *Service) VerifyCorpLogin(ctx context.Context, flowID string) (*CorpLoginStatus, error) {
	if s.mfa == nil {
		return nil, errCorpDisabled
	}
	flow, err := s.liveCorpFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return &CorpLoginStatus{LoginFlowID: flow.FlowID, Status: corpStatusMFARequired, AllowedFactors: flow.AllowedFactors}, nil
}

// ChallengeCorpMfa issues a challenge for one of the flow's factors.
func (s *Service) ChallengeCorpMfa(ctx context.Context, flowID, factor string) (*MFAChallenge, error) {
	if s.mfa == nil {
		return nil, errCorpDisabled
	}
	flow, err := s.liveCorpFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if !flow.Allows(factor) {
		return nil, apperrors.BadRequest(apperrors.CodeUnsupportedFactor, "factor is not allowed for this login").WithDetail("factor", factor)
	}

	if factor == mfa.FactorPasskey {
		issued, err := s.mfa.IssuePasskey(ctx, flow.FlowID)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.ChallengeCorpMfa] passkey challenge")
		}
		return &MFAChallenge{
			Factor:      factor,
			ChallengeID: issued.ChallengeID,
			Challenge:   issued.Challenge,
			RPID:        issued.RPID,
			TimeoutMs:   issued.TimeoutMs,
		}, nil
	}

	issued, err := s.mfa.IssueOTP(ctx, mfa.OTPRequest{
		Subject:     flow.FlowID,
		Factor:      factor,
		Purpose:     "CORP_LOGIN",
		Channel:     mfa.ChannelEmail,
		Destination: flow.Email,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ChallengeCorpMfa] otp challenge")
	}
	return &MFAChallenge{
		Factor:      factor,
		ChallengeID: issued.ChallengeID,
		ExpiresIn:   issued.ExpiresIn,
		ResendAfter: issued.ResendAfter,
	}, nil
}

// VerifyCorpMfa checks the second factor, burns the challenge and the flow,
// and issues a corporate session.
func (s *Service) VerifyCorpMfa(ctx context.Context, req VerifyCorpMfaRequest) (resp *SessionResponse, err error) {
	if s.mfa == nil {
		return nil, errCorpDisabled
	}
	defer func() { s.recordLogin(flowCorp, err) }()

	challenge, err := s.mfa.Lookup(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	flowID := challenge.Subject
	if _, err := s.liveCorpFlow(ctx, flowID); err != nil {
		return nil, err
	}

	switch challenge.Kind {
	case mfa.KindPasskey:
		_, err = s.mfa.VerifyPasskey(ctx, req.ChallengeID, flowID, req.Assertion)
	default:
		_, err = s.mfa.VerifyOTP(ctx, req.ChallengeID, flowID, req.OTP)
	}
	if err != nil {
		return nil, err
	}

	flow, err := s.repos.CorpFlows.Consume(ctx, flowID)
	if errors.Is(err, authflow.ErrFlowNotFound) {
		return nil, ErrInvalidOrExpiredState
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCorpMfa] consume flow")
	}

	subject := CorpSubject(flow.Email)
	tokens, binding, err := s.corp.Issue(subject, flow.Email)
	if err != nil {
		return nil, err
	}
	claims, err := s.corp.Verify(tokens.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyCorpMfa] decode issued token")
	}
	held := s.cfg.CorpRoles.FromClaims(claims)
	if !s.cfg.CorpRoles.HasExactlyOneSupportedRole(held) {
		log.Warn().Str("flow_id", flowID).Strs("roles", held.Slice()).Msg("Corporate login rejected by role policy")
		return nil, ErrAccessDenied
	}

	identity := users.Identity{
		ProviderUserID: subject,
		Email:          flow.Email,
		Realm:          users.RealmCorp,
		Roles:          held.Slice(),
	}
	device := req.Device
	if device == "" {
		device = flow.DeviceInfo
	}
	return s.issueSession(ctx, flowCorp, tokens, identity, binding, device, req.IP, sessions.RiskMedium, sessions.MFA)
}

func (s *Service) liveCorpFlow(ctx context.Context, flowID string) (*authflow.CorpFlowState, error) {
	if strings.TrimSpace(flowID) == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "loginFlowId is required")
	}
	flow, err := s.repos.CorpFlows.Get(ctx, flowID)
	if errors.Is(err, authflow.ErrFlowNotFound) {
		return nil, ErrInvalidOrExpiredState
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.liveCorpFlow] read flow")
	}
	if flow.Expired(s.nowTime()) {
		return nil, ErrInvalidOrExpiredState
	}
	return flow, nil
}
