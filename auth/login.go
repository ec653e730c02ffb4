package auth

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/jrsteele09/go-auth-gateway/idp"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidOrExpiredState = apperrors.Unauthorized(apperrors.CodeInvalidOrExpiredState, "login state is invalid or has expired")
	ErrAccessDenied          = apperrors.Forbidden(apperrors.CodeAccessDenied, "account must hold exactly one supported role")
)

// StartLogin creates a PKCE flow and returns the provider authorization URL.
func (s *Service) StartLogin(ctx context.Context, req StartLoginRequest) (*LoginStart, error) {
	if !s.redirectAllowed(req.RedirectURI) {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "redirect URI is not allowed").WithDetail("redirectUri", req.RedirectURI)
	}
	state, err := generateRandomString(randomLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.StartLogin] generate state")
	}
	verifier, err := generateRandomString(randomLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.StartLogin] generate verifier")
	}

	now := s.nowTime()
	flow := &authflow.LoginFlowState{
		State:        state,
		CodeVerifier: verifier,
		RedirectURI:  req.RedirectURI,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.FlowTTL),
	}
	if err := s.repos.Flows.Save(ctx, flow); err != nil {
		return nil, errors.Wrap(err, "[Service.StartLogin] save flow")
	}

	return &LoginStart{
		AuthorizationURL: s.provider.BuildAuthorizeURL(req.RedirectURI, s.scope(req.Scope), state, CodeChallengeS256(verifier)),
		State:            state,
		ExpiresIn:        int64(s.cfg.FlowTTL / time.Second),
	}, nil
}

// CompleteLogin redeems the provider callback. The flow is consumed before
// the code exchange, so a state can only ever be redeemed once.
func (s *Service) CompleteLogin(ctx context.Context, req CompleteLoginRequest) (resp *SessionResponse, err error) {
	defer func() { s.recordLogin(flowPublic, err) }()

	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.State) == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "code and state are required")
	}
	flow, err := s.repos.Flows.Consume(ctx, req.State)
	if errors.Is(err, authflow.ErrFlowNotFound) {
		return nil, ErrInvalidOrExpiredState
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteLogin] consume flow")
	}
	if flow.Expired(s.nowTime()) {
		return nil, ErrInvalidOrExpiredState
	}

	tokens, err := s.provider.ExchangeAuthorizationCode(ctx, req.Code, flow.CodeVerifier, flow.RedirectURI)
	if err != nil {
		log.Err(err).Msg("Authorization code exchange failed")
		return nil, errors.Wrap(MapTokenError(err), "[Service.CompleteLogin] exchange code")
	}

	claims, err := roles.ParseUnverified(tokens.AccessToken)
	if err != nil {
		return nil, apperrors.BadGateway(err, apperrors.CodeProviderError, "identity provider returned an unreadable access token")
	}
	held := s.cfg.PublicRoles.FromClaims(claims)
	if !s.cfg.PublicRoles.HasExactlyOneSupportedRole(held) {
		log.Warn().Str("subject", claims.Subject).Strs("roles", held.Slice()).Msg("Login rejected by role policy")
		return nil, ErrAccessDenied
	}

	user, err := s.provider.UserInfo(ctx, tokens)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CompleteLogin] resolve identity")
	}
	return s.issueSession(ctx, flowPublic, tokens, identityOf(user, users.RealmPublic), sessionBinding(claims, tokens), req.Device, req.IP, sessions.RiskLow, sessions.MFANone)
}

// issueSession upserts the profile and records a new session for tokens.
func (s *Service) issueSession(ctx context.Context, flow string, tokens *idp.Tokens, identity users.Identity, binding, device, ip string, risk sessions.RiskLevel, level sessions.MFALevel) (*SessionResponse, error) {
	profile, _, err := s.repos.Users.CreateOrGetFromIdentity(ctx, identity)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueSession] upsert profile")
	}
	session, err := s.repos.Sessions.Create(ctx, sessions.NewSession{
		UserID:    profile.UserID,
		Realm:     identity.Realm,
		Device:    device,
		IP:        ip,
		RiskLevel: risk,
		MFALevel:  level,
		Binding:   binding,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.issueSession] create session")
	}
	s.metrics.RecordSessionCreated(flow)
	log.Info().Str("user_id", profile.UserID).Str("session_id", session.SessionID).Str("realm", identity.Realm).Msg("Session issued")

	return &SessionResponse{
		Tokens:        tokens,
		User:          profile,
		IsNewUser:     profile.IsNew(),
		ProfileStatus: profile.Status,
		MFALevel:      level,
		SessionID:     session.SessionID,
	}, nil
}

func (s *Service) redirectAllowed(uri string) bool {
	for _, allowed := range s.cfg.AllowedRedirectURIs {
		if uri == allowed {
			return true
		}
	}
	return false
}

func (s *Service) scope(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return s.cfg.Scope
}

func (s *Service) recordLogin(flow string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	s.metrics.RecordLogin(flow, outcome)
}

func identityOf(u *idp.User, realm string) users.Identity {
	return users.Identity{
		ProviderUserID: u.ProviderUserID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Realm:          realm,
		Roles:          u.Roles,
	}
}

// sessionBinding is the provider session id when the token carries one.
func sessionBinding(claims *roles.Claims, tokens *idp.Tokens) string {
	if claims != nil && claims.SessionID != "" {
		return claims.SessionID
	}
	return tokens.RefreshToken
}
