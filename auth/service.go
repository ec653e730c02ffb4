// Package auth orchestrates logins against the identity provider: the PKCE
// login and callback, the corporate MFA login, token refresh, logout,
// step-up challenges, session listing and admin provisioning.
package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/jrsteele09/go-auth-gateway/idp"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
)

const (
	DefaultFlowTTL = 300 * time.Second
	randomLength   = 32
)

// Flow labels used for metrics.
const (
	flowPublic = "public"
	flowCorp   = "corp"
)

// IdentityProvider is the part of idp.Client used for logins.
type IdentityProvider interface {
	BuildAuthorizeURL(redirectURI, scope, state, codeChallenge string) string
	ExchangeAuthorizationCode(ctx context.Context, code, verifier, redirectURI string) (*idp.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*idp.Tokens, error)
	UserInfo(ctx context.Context, tokens *idp.Tokens) (*idp.User, error)
	Revoke(ctx context.Context, token, hint string) error
	EndSession(ctx context.Context, refreshToken string) error
}

// UserAdmin is the part of idp.Client used for provisioning.
type UserAdmin interface {
	UserExistsByUsername(ctx context.Context, username string) (bool, error)
	UserExistsByEmail(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, u idp.NewUser) (string, error)
	AssignExclusiveRealmRole(ctx context.Context, userID, role string) error
	DeleteUser(ctx context.Context, userID string) error
}

var (
	_ IdentityProvider = (*idp.Client)(nil)
	_ UserAdmin        = (*idp.Client)(nil)
)

// Repos holds all repository dependencies for the Service
type Repos struct {
	Flows     authflow.Repo     // Pending PKCE logins
	CorpFlows authflow.CorpRepo // Pending corporate logins
	Sessions  sessions.Repo     // Signed in devices
	Users     users.Directory   // Local profiles
}

type Config struct {
	FlowTTL             time.Duration
	AllowedRedirectURIs []string
	Scope               string
	PublicRoles         *roles.Extractor
	CorpRoles           *roles.Extractor
	CorpMembers         *CorpMembership
}

// Service is safe for concurrent use.
type Service struct {
	repos    Repos
	cfg      Config
	provider IdentityProvider
	admin    UserAdmin
	mfa      *mfa.Service
	corp     *CorpTokenIssuer
	stepUp   *StepUpIssuer
	metrics  metrics.Recorder
	nowTime  func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithMetrics(m metrics.Recorder) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUserAdmin enables the admin provisioning operations.
func WithUserAdmin(a UserAdmin) ServiceOption {
	return func(s *Service) {
		s.admin = a
	}
}

// WithMFA enables corporate logins and step-up challenges.
func WithMFA(m *mfa.Service, corp *CorpTokenIssuer, stepUp *StepUpIssuer) ServiceOption {
	return func(s *Service) {
		s.mfa = m
		s.corp = corp
		s.stepUp = stepUp
	}
}

// NewService initializes a new Service with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewService(repos Repos, provider IdentityProvider, cfg Config, options ...ServiceOption) (*Service, error) {
	if repos.Flows == nil {
		return nil, errors.New("[NewService] Flows repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users directory is required")
	}
	if provider == nil {
		return nil, errors.New("[NewService] identity provider is required")
	}
	if cfg.PublicRoles == nil {
		return nil, errors.New("[NewService] public role extractor is required")
	}
	if len(cfg.AllowedRedirectURIs) == 0 {
		return nil, errors.New("[NewService] at least one allowed redirect URI is required")
	}
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = DefaultFlowTTL
	}
	if cfg.CorpRoles == nil {
		cfg.CorpRoles = roles.NewExtractor("", roles.CorpRoles...)
	}

	s := &Service{
		repos:    repos,
		cfg:      cfg,
		provider: provider,
		metrics:  metrics.Nop{},
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.mfa != nil && (repos.CorpFlows == nil || s.corp == nil || s.stepUp == nil) {
		return nil, errors.New("[NewService] MFA requires the corp flow repo and both token issuers")
	}
	return s, nil
}
