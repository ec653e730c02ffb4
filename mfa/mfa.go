// Package mfa issues and checks second-factor challenges: one-time codes
// delivered by a Sender, and WebAuthn assertion challenges checked by an
// AssertionVerifier.
package mfa

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/pkg/errors"
)

// Factors offered to corporate logins.
const (
	FactorPasskey  = "PASSKEY"
	FactorTOTP     = "TOTP"
	FactorEmailOTP = "EMAIL_OTP"
)

// Delivery channels for step-up codes.
const (
	ChannelSMS   = "SMS"
	ChannelEmail = "EMAIL"
)

const (
	DefaultOTPTTL         = 300 * time.Second
	DefaultResendAfter    = 30 * time.Second
	DefaultMaxAttempts    = 5
	DefaultPasskeyTimeout = 60 * time.Second
)

type Kind string

const (
	KindOTP     Kind = "OTP"
	KindPasskey Kind = "PASSKEY"
)

// Challenge is a pending second-factor check bound to a subject, which is a
// user id for step-up or a corporate login flow id.
type Challenge struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Factor      string    `json:"factor"`
	Subject     string    `json:"subject"`
	Purpose     string    `json:"purpose,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Destination string    `json:"destination,omitempty"`
	CodeHash    []byte    `json:"codeHash,omitempty"`
	Nonce       string    `json:"nonce,omitempty"` // base64url WebAuthn challenge
	RPID        string    `json:"rpId,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Message is an OTP delivery request.
type Message struct {
	Channel     string
	Destination string
	Purpose     string
	Code        string
	ExpiresAt   time.Time
}

// Sender delivers one-time codes.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// AssertionVerifier checks a WebAuthn assertion against the challenge it
// answers.
type AssertionVerifier interface {
	VerifyAssertion(ctx context.Context, challenge *Challenge, assertion string) error
}

type Config struct {
	OTPTTL         time.Duration
	ResendAfter    time.Duration
	MaxAttempts    int
	RPID           string
	PasskeyTimeout time.Duration
}

var (
	ErrChallengeNotFound = apperrors.Unauthorized(apperrors.CodeChallengeNotFound, "challenge not found or expired")
	ErrInvalidOTP        = apperrors.Unauthorized(apperrors.CodeInvalidOTP, "invalid one-time code")
	ErrInvalidAssertion  = apperrors.Unauthorized(apperrors.CodeInvalidAssertion, "passkey assertion rejected")
	ErrTooManyRequests   = apperrors.RateLimited(apperrors.CodeTooManyRequests, "a code was sent recently, try again later")
)

// Service is safe for concurrent use.
type Service struct {
	cfg      Config
	store    kv.Store[Challenge]
	sender   Sender
	verifier AssertionVerifier
	limiters sync.Map // destination -> *rate.Limiter
	nowTime  func() time.Time
}

type Option func(*Service)

// WithAssertionVerifier enables the PASSKEY factor.
func WithAssertionVerifier(v AssertionVerifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(cfg Config, store kv.Store[Challenge], sender Sender, options ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("[mfa.NewService] challenge store is required")
	}
	if sender == nil {
		return nil, errors.New("[mfa.NewService] sender is required")
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	if cfg.ResendAfter <= 0 {
		cfg.ResendAfter = DefaultResendAfter
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PasskeyTimeout <= 0 {
		cfg.PasskeyTimeout = DefaultPasskeyTimeout
	}
	s := &Service{cfg: cfg, store: store, sender: sender, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// PasskeyEnabled reports whether assertions can be verified.
func (s *Service) PasskeyEnabled() bool {
	return s.verifier != nil
}

// Lookup returns a live challenge without consuming it.
func (s *Service) Lookup(ctx context.Context, challengeID string) (*Challenge, error) {
	c, err := s.store.Get(ctx, challengeID)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Lookup] read challenge")
	}
	if c.Expired(s.nowTime()) {
		_, _ = s.store.Delete(ctx, challengeID)
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// burn removes a challenge. It fails when another caller removed it first.
func (s *Service) burn(ctx context.Context, challengeID string) error {
	_, err := s.store.Take(ctx, challengeID)
	if errors.Is(err, kv.ErrNotFound) {
		return ErrChallengeNotFound
	}
	return errors.Wrap(err, "[Service.burn] remove challenge")
}

func (s *Service) save(ctx context.Context, c *Challenge) error {
	ttl := c.ExpiresAt.Sub(s.nowTime())
	if ttl <= 0 {
		ttl = time.Second
	}
	return errors.Wrap(s.store.Put(ctx, c.ID, c, ttl), "[Service.save] store challenge")
}
