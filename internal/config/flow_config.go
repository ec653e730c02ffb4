package config

import (
	"strings"
	"time"
)

type FlowConfig interface {
	GetFlowTTL() time.Duration
	GetAllowedRedirectURIs() []string
	GetDefaultRedirectURI() string
}

type StepUpConfig interface {
	GetOTPTTL() time.Duration
	GetOTPResendAfter() time.Duration
	GetOTPMaxAttempts() int
	GetStepUpTokenTTL() time.Duration
	GetStepUpSigningKey() []byte
	GetOTPDeliveryURL() string
	GetOTPDeliveryToken() string
}

type CorpConfig interface {
	GetCorpRealm() string
	GetCorpSupportedRoles() []string
	GetCorpDefaultRole() string
	GetCorpTokenTTL() time.Duration
	GetCorpSigningKey() []byte
	GetCorpEmailDomains() []string
	GetCorpAllowedEmails() []string
	GetWebAuthnRPID() string
	GetWebAuthnTimeout() time.Duration
}

type Flow struct {
	TTL                 time.Duration `env:"FLOW_TTL" envDefault:"300s"`
	AllowedRedirectURIs []string      `env:"FLOW_ALLOWED_REDIRECT_URIS" envSeparator:"," envDefault:"http://localhost:3000/auth/callback"`
}

var _ FlowConfig = Flow{}

func (f Flow) GetFlowTTL() time.Duration {
	return f.TTL
}

func (f Flow) GetAllowedRedirectURIs() []string {
	return trimAll(f.AllowedRedirectURIs)
}

// GetDefaultRedirectURI is the first allowed redirect URI.
func (f Flow) GetDefaultRedirectURI() string {
	uris := f.GetAllowedRedirectURIs()
	if len(uris) == 0 {
		return ""
	}
	return uris[0]
}

type StepUp struct {
	OTPTTL         time.Duration `env:"STEP_UP_OTP_TTL" envDefault:"300s"`
	OTPResendAfter time.Duration `env:"STEP_UP_OTP_RESEND_AFTER" envDefault:"30s"`
	OTPMaxAttempts int           `env:"STEP_UP_OTP_MAX_ATTEMPTS" envDefault:"5"`
	TokenTTL       time.Duration `env:"STEP_UP_TOKEN_TTL" envDefault:"600s"`
	SigningKey     string        `env:"STEP_UP_SIGNING_KEY" envDefault:"dev-step-up-signing-key-change-me-0001"`
	DeliveryURL    string        `env:"OTP_DELIVERY_URL"`
	DeliveryToken  string        `env:"OTP_DELIVERY_TOKEN"`
}

var _ StepUpConfig = StepUp{}

func (s StepUp) GetOTPTTL() time.Duration {
	return s.OTPTTL
}

func (s StepUp) GetOTPResendAfter() time.Duration {
	return s.OTPResendAfter
}

func (s StepUp) GetOTPMaxAttempts() int {
	return s.OTPMaxAttempts
}

func (s StepUp) GetStepUpTokenTTL() time.Duration {
	return s.TokenTTL
}

func (s StepUp) GetStepUpSigningKey() []byte {
	return []byte(s.SigningKey)
}

// GetOTPDeliveryURL is the endpoint one-time codes are posted to. Empty means
// codes are only logged.
func (s StepUp) GetOTPDeliveryURL() string {
	return strings.TrimSpace(s.DeliveryURL)
}

func (s StepUp) GetOTPDeliveryToken() string {
	return s.DeliveryToken
}

type Corp struct {
	Realm           string        `env:"CORP_REALM" envDefault:"CORP"`
	SupportedRoles  []string      `env:"CORP_SUPPORTED_ROLES" envSeparator:"," envDefault:"OPS_AGENT"`
	DefaultRole     string        `env:"CORP_DEFAULT_ROLE" envDefault:"OPS_AGENT"`
	TokenTTL        time.Duration `env:"CORP_TOKEN_TTL" envDefault:"15m"`
	SigningKey      string        `env:"CORP_SIGNING_KEY" envDefault:"dev-corp-signing-key-change-me-000001"`
	EmailDomains    []string      `env:"CORP_ALLOWED_EMAIL_DOMAINS" envSeparator:","` // Staff mail domains
	AllowedEmails   []string      `env:"CORP_ALLOWED_EMAILS" envSeparator:","`        // Individual staff addresses
	WebAuthnRPID    string        `env:"WEBAUTHN_RP_ID" envDefault:"localhost"`
	WebAuthnTimeout time.Duration `env:"WEBAUTHN_TIMEOUT" envDefault:"60s"`
}

var _ CorpConfig = Corp{}

func (c Corp) GetCorpRealm() string {
	return c.Realm
}

func (c Corp) GetCorpSupportedRoles() []string {
	return trimAll(c.SupportedRoles)
}

func (c Corp) GetCorpDefaultRole() string {
	return c.DefaultRole
}

func (c Corp) GetCorpTokenTTL() time.Duration {
	return c.TokenTTL
}

func (c Corp) GetCorpSigningKey() []byte {
	return []byte(c.SigningKey)
}

func (c Corp) GetCorpEmailDomains() []string {
	return lowerAll(c.EmailDomains)
}

func (c Corp) GetCorpAllowedEmails() []string {
	return lowerAll(c.AllowedEmails)
}

func (c Corp) GetWebAuthnRPID() string {
	return c.WebAuthnRPID
}

func (c Corp) GetWebAuthnTimeout() time.Duration {
	return c.WebAuthnTimeout
}

func lowerAll(values []string) []string {
	out := trimAll(values)
	for i, v := range out {
		out[i] = strings.ToLower(v)
	}
	return out
}
