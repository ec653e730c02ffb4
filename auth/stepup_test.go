package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/auth"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/stretchr/testify/require"
)

func TestStepUpOtp(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)

	challenge, err := f.service.RequestStepUpOtp(ctx, login.User.UserID, auth.StepUpOtpRequest{
		Purpose:     "CHANGE_EMAIL",
		Channel:     "sms",
		Destination: "+44 7700 900123",
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), challenge.ExpiresIn)
	require.Equal(t, int64(30), challenge.ResendAfter)
	require.Equal(t, mfa.ChannelSMS, f.sender.sent[0].Channel)

	result, err := f.service.VerifyStepUpOtp(ctx, login.User.UserID, challenge.ChallengeID, f.sender.lastCode(t))
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Equal(t, f.clock().Add(600*time.Second).Unix(), result.ExpiresAt.Unix())

	userID, purpose, err := f.stepUp.Verify(result.StepUpToken)
	require.NoError(t, err)
	require.Equal(t, login.User.UserID, userID)
	require.Equal(t, "CHANGE_EMAIL", purpose)

	_, err = f.service.VerifyStepUpOtp(ctx, login.User.UserID, challenge.ChallengeID, f.sender.lastCode(t))
	require.ErrorIs(t, err, mfa.ErrChallengeNotFound)
}

func TestStepUpTokenExpires(t *testing.T) {
	f := setupTestFixture(t)
	token, _, err := f.stepUp.Issue("usr_1", "PAY", "ch-1")
	require.NoError(t, err)

	f.advance(601 * time.Second)
	_, _, err = f.stepUp.Verify(token)
	require.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
}

func TestStepUpOtpValidation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	cases := map[string]auth.StepUpOtpRequest{
		"unknown channel":     {Purpose: "PAY", Channel: "PIGEON", Destination: "x"},
		"missing destination": {Purpose: "PAY", Channel: "EMAIL"},
		"missing purpose":     {Channel: "EMAIL", Destination: "a@example.com"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.service.RequestStepUpOtp(ctx, "usr_1", req)
			require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
		})
	}

	_, err := f.service.VerifyStepUpOtp(ctx, "usr_1", "", "123456")
	require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
}

func TestStepUpOtpResendLimit(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	req := auth.StepUpOtpRequest{Purpose: "PAY", Channel: "EMAIL", Destination: "jane@example.com"}

	_, err := f.service.RequestStepUpOtp(ctx, "usr_1", req)
	require.NoError(t, err)

	_, err = f.service.RequestStepUpOtp(ctx, "usr_1", req)
	require.Equal(t, http.StatusTooManyRequests, apperrors.HTTPStatus(err))

	f.advance(31 * time.Second)
	_, err = f.service.RequestStepUpOtp(ctx, "usr_1", req)
	require.NoError(t, err)
}

func TestStepUpOtpBelongsToUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	challenge, err := f.service.RequestStepUpOtp(ctx, "usr_1", auth.StepUpOtpRequest{Purpose: "PAY", Channel: "EMAIL", Destination: "a@example.com"})
	require.NoError(t, err)

	_, err = f.service.VerifyStepUpOtp(ctx, "usr_2", challenge.ChallengeID, f.sender.lastCode(t))
	require.ErrorIs(t, err, mfa.ErrChallengeNotFound)
}
