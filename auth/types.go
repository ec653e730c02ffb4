package auth

import (
	"time"

	"github.com/jrsteele09/go-auth-gateway/idp"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
)

type StartLoginRequest struct {
	RedirectURI string `json:"redirectUri"`
	Scope       string `json:"scope,omitempty"`
}

type LoginStart struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
	ExpiresIn        int64  `json:"expiresIn"`
}

type CompleteLoginRequest struct {
	Code   string `json:"code"`
	State  string `json:"state"`
	Device string `json:"device,omitempty"`
	IP     string `json:"-"`
}

// SessionResponse is returned by every operation that issues tokens.
type SessionResponse struct {
	Tokens        *idp.Tokens         `json:"tokens"`
	User          *users.Profile      `json:"user,omitempty"`
	IsNewUser     bool                `json:"isNewUser"`
	ProfileStatus users.ProfileStatus `json:"profileStatus,omitempty"`
	MFALevel      sessions.MFALevel   `json:"mfaLevel"`
	SessionID     string              `json:"sessionId,omitempty"`
}

type CorpLoginStart struct {
	LoginFlowID    string   `json:"loginFlowId"`
	AllowedFactors []string `json:"allowedFactors"`
	RequiresStepUp bool     `json:"requiresStepUp"`
	ExpiresIn      int64    `json:"expiresIn"`
}

const corpStatusMFARequired = "MFA_REQUIRED"

type CorpLoginStatus struct {
	LoginFlowID    string   `json:"loginFlowId"`
	Status         string   `json:"status"`
	AllowedFactors []string `json:"allowedFactors"`
}

// MFAChallenge carries either a passkey or an OTP challenge, depending on
// Factor.
type MFAChallenge struct {
	Factor      string `json:"factor"`
	ChallengeID string `json:"challengeId"`
	Challenge   string `json:"challenge,omitempty"`
	RPID        string `json:"rpId,omitempty"`
	TimeoutMs   int64  `json:"timeoutMs,omitempty"`
	ExpiresIn   int64  `json:"expiresIn,omitempty"`
	ResendAfter int64  `json:"resendAfter,omitempty"`
}

type VerifyCorpMfaRequest struct {
	ChallengeID string `json:"challengeId"`
	OTP         string `json:"otp,omitempty"`
	Assertion   string `json:"assertion,omitempty"`
	Device      string `json:"device,omitempty"`
	IP          string `json:"-"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AccessToken  string `json:"-"`
	Realm        string `json:"-"` // Realm of the caller's token
	AllSessions  bool   `json:"allSessions"`
}

type StepUpOtpRequest struct {
	Purpose     string `json:"purpose"`
	Channel     string `json:"channel"`
	Destination string `json:"destination"`
}

type StepUpChallenge struct {
	ChallengeID string `json:"challengeId"`
	ExpiresIn   int64  `json:"expiresIn"`
	ResendAfter int64  `json:"resendAfter"`
}

type StepUpResult struct {
	Verified    bool      `json:"verified"`
	StepUpToken string    `json:"stepUpToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type ProvisionUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}
