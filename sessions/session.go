package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

type MFALevel string

const (
	MFANone MFALevel = "NONE"
	MFA     MFALevel = "MFA"
)

const (
	DefaultDevice = "web"
	DefaultIP     = "unknown"
	idPrefix      = "sess_"
)

// UserSession is one signed-in device of a user. Only LastSeenAt changes
// after creation.
type UserSession struct {
	SessionID        string    `json:"sessionId"`        // sess_<uuid>
	UserID           string    `json:"userId"`           // Directory user id
	Realm            string    `json:"realm"`            // Realm the login happened in
	Device           string    `json:"device"`           // Client supplied device label
	IP               string    `json:"ip"`               // Client address as seen at login
	CreatedAt        time.Time `json:"createdAt"`
	LastSeenAt       time.Time `json:"lastSeenAt"`       // Last authenticated use
	RiskLevel        RiskLevel `json:"riskLevel"`        // Assessed at login
	MFALevel         MFALevel  `json:"mfaLevel"`         // Factors presented at login
	TokenFingerprint string    `json:"tokenFingerprint"` // sha256 of the provider session the tokens belong to
}

// NewSession is the input to Repo.Create. Binding identifies the provider
// session behind the tokens (the sid claim, or the refresh token when there
// is none). It is not stored, only its fingerprint.
type NewSession struct {
	UserID    string
	Realm     string
	Device    string
	IP        string
	RiskLevel RiskLevel
	MFALevel  MFALevel
	Binding   string
}

// Fingerprint hashes a token so sessions can be matched to it later.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
