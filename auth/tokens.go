package auth

import (
	"context"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Refresh redeems a refresh token and re-wraps the result. The role policy
// is not re-applied; it was enforced when the session was issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "refreshToken is required")
	}
	tokens, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(MapTokenError(err), "[Service.Refresh] refresh token")
	}

	resp := &SessionResponse{Tokens: tokens, MFALevel: sessions.MFANone}
	claims, err := roles.ParseUnverified(tokens.AccessToken)
	if err != nil {
		return nil, apperrors.BadGateway(err, apperrors.CodeProviderError, "identity provider returned an unreadable access token")
	}
	userID := users.UserIDFor(claims.Subject)

	profile, err := s.repos.Users.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		resp.User = profile
		resp.IsNewUser = profile.IsNew()
		resp.ProfileStatus = profile.Status
	case !errors.Is(err, users.ErrUserNotFound):
		return nil, errors.Wrap(err, "[Service.Refresh] read profile")
	}

	if session, ok := s.findSession(ctx, userID, sessionBinding(claims, tokens)); ok {
		resp.SessionID = session.SessionID
		resp.MFALevel = session.MFALevel
		if err := s.repos.Sessions.Touch(ctx, userID, session.SessionID, s.nowTime()); err != nil {
			log.Err(err).Str("session_id", session.SessionID).Msg("Failed to touch session")
		}
	}
	return resp, nil
}

// Logout revokes the caller's tokens at the provider, ends the provider
// session and removes the matching local session, or all of the user's
// sessions when AllSessions is set. Provider failures are returned. Corporate
// tokens are issued locally, so only the local sessions are removed.
func (s *Service) Logout(ctx context.Context, userID string, req LogoutRequest) error {
	if req.Realm != users.RealmCorp {
		if err := s.revokeAtProvider(ctx, req); err != nil {
			return err
		}
	}

	if req.AllSessions {
		_, err := s.RevokeAllSessions(ctx, userID)
		return err
	}

	binding := req.RefreshToken
	if claims, err := roles.ParseUnverified(req.AccessToken); err == nil && claims.SessionID != "" {
		binding = claims.SessionID
	}
	if session, ok := s.findSession(ctx, userID, binding); ok {
		if _, err := s.RevokeSession(ctx, userID, session.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// revokeAtProvider ends the provider session before revoking the refresh
// token, since a revoked token can no longer name its session.
func (s *Service) revokeAtProvider(ctx context.Context, req LogoutRequest) error {
	if req.AccessToken != "" {
		if err := s.provider.Revoke(ctx, req.AccessToken, "access_token"); err != nil {
			return errors.Wrap(err, "[Service.Logout] revoke access token")
		}
	}
	if req.RefreshToken == "" {
		return nil
	}
	if err := s.provider.EndSession(ctx, req.RefreshToken); err != nil {
		return errors.Wrap(err, "[Service.Logout] end provider session")
	}
	if err := s.provider.Revoke(ctx, req.RefreshToken, "refresh_token"); err != nil {
		return errors.Wrap(err, "[Service.Logout] revoke refresh token")
	}
	return nil
}

func (s *Service) findSession(ctx context.Context, userID, binding string) (sessions.UserSession, bool) {
	fp := sessions.Fingerprint(binding)
	if fp == "" {
		return sessions.UserSession{}, false
	}
	list, err := s.repos.Sessions.GetByUserID(ctx, userID)
	if err != nil {
		log.Err(err).Str("user_id", userID).Msg("Failed to list sessions")
		return sessions.UserSession{}, false
	}
	for _, session := range list {
		if session.TokenFingerprint == fp {
			return session, true
		}
	}
	return sessions.UserSession{}, false
}

// ListSessions returns the user's live sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]sessions.UserSession, error) {
	list, err := s.repos.Sessions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ListSessions] list sessions")
	}
	return list, nil
}

// RevokeSession removes one session. Removing an unknown session is not an
// error; removed reports whether it existed.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (removed bool, err error) {
	removed, err = s.repos.Sessions.Revoke(ctx, userID, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "[Service.RevokeSession] revoke session")
	}
	if removed {
		s.metrics.RecordSessionsRevoked(1)
	}
	return removed, nil
}

// RevokeAllSessions removes every session of the user and returns how many
// there were.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	n, err := s.repos.Sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.RevokeAllSessions] revoke sessions")
	}
	s.metrics.RecordSessionsRevoked(n)
	return n, nil
}
