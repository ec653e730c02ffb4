package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/idp/idptest"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/stretchr/testify/require"
)

func TestRefreshKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)

	resp, err := f.service.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, login.Tokens.RefreshToken, resp.Tokens.RefreshToken)
	require.Equal(t, login.SessionID, resp.SessionID)
	require.Equal(t, login.User.UserID, resp.User.UserID)
	require.Equal(t, sessions.MFANone, resp.MFALevel)

	list, err := f.service.ListSessions(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// provider refresh tokens are single use
	_, err = f.service.Refresh(ctx, login.Tokens.RefreshToken)
	require.Equal(t, apperrors.CodeRefreshTokenInvalid, codeOf(t, err))
	require.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
}

func TestRefreshValidation(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Refresh(context.Background(), "  ")
	require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	_, err = f.service.Refresh(context.Background(), "rt-unknown")
	require.Equal(t, apperrors.CodeRefreshTokenInvalid, codeOf(t, err))
}

func TestRefreshProviderDown(t *testing.T) {
	f := setupTestFixture(t)
	login := f.login(t)
	f.fake.FailToken(&idptest.Failure{Status: http.StatusBadGateway})

	_, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	require.True(t, apperrors.Retryable(err))
}

func TestLogoutRemovesMatchingSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	first := f.login(t)
	second := f.login(t)
	require.Equal(t, first.User.UserID, second.User.UserID)

	err := f.service.Logout(ctx, first.User.UserID, auth.LogoutRequest{
		RefreshToken: first.Tokens.RefreshToken,
		AccessToken:  first.Tokens.AccessToken,
	})
	require.NoError(t, err)

	list, err := f.service.ListSessions(ctx, first.User.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, second.SessionID, list[0].SessionID)

	calls := f.fake.Calls()
	require.Contains(t, calls, "revoke")
	require.Contains(t, calls, "logout")
	require.Equal(t, 1, f.metrics.revoked)
}

func TestRefreshAfterLogoutIsRejected(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)

	before := len(f.fake.Calls())
	err := f.service.Logout(ctx, login.User.UserID, auth.LogoutRequest{
		RefreshToken: login.Tokens.RefreshToken,
		AccessToken:  login.Tokens.AccessToken,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"revoke", "logout", "revoke"}, f.fake.Calls()[before:])
	require.False(t, f.fake.RefreshTokenActive(login.Tokens.RefreshToken))

	_, err = f.service.Refresh(ctx, login.Tokens.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	require.Equal(t, apperrors.CodeRefreshTokenInvalid, codeOf(t, err))
}

func TestLogoutWithEndedProviderSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)

	// The provider forgot the session, e.g. it expired or another client ended it.
	_, err := f.service.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)

	err = f.service.Logout(ctx, login.User.UserID, auth.LogoutRequest{
		RefreshToken: login.Tokens.RefreshToken,
		AccessToken:  login.Tokens.AccessToken,
	})
	require.NoError(t, err)
	list, err := f.service.ListSessions(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLogoutAllSessions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	first := f.login(t)
	f.login(t)
	f.login(t)

	err := f.service.Logout(ctx, first.User.UserID, auth.LogoutRequest{RefreshToken: first.Tokens.RefreshToken, AllSessions: true})
	require.NoError(t, err)

	list, err := f.service.ListSessions(ctx, first.User.UserID)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Equal(t, 3, f.metrics.revoked)
}

func TestLogoutProviderFailureKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)
	f.fake.FailLogout(http.StatusServiceUnavailable)

	err := f.service.Logout(ctx, login.User.UserID, auth.LogoutRequest{RefreshToken: login.Tokens.RefreshToken})
	require.True(t, apperrors.Retryable(err))

	list, err := f.service.ListSessions(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRevokeSessions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)
	f.login(t)

	removed, err := f.service.RevokeSession(ctx, login.User.UserID, login.SessionID)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = f.service.RevokeSession(ctx, login.User.UserID, login.SessionID)
	require.NoError(t, err)
	require.False(t, removed)

	n, err := f.service.RevokeAllSessions(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 2, f.metrics.revoked)
}
