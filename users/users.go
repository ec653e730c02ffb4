package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type ProfileStatus string

const (
	StatusIncomplete ProfileStatus = "INCOMPLETE"
	StatusComplete   ProfileStatus = "COMPLETE"
)

// Realms a profile can belong to.
const (
	RealmPublic = "PUBLIC"
	RealmCorp   = "CORP"
)

// Identity is the provider side view of a person, as resolved at login.
type Identity struct {
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	Realm          string
	Roles          []string
}

type Profile struct {
	UserID         string        `json:"userId"`                  // usr_<provider subject without dashes>
	ProviderUserID string        `json:"providerUserId"`          // Subject at the identity provider
	Realm          string        `json:"realm"`                   // PUBLIC or CORP
	Email          string        `json:"email,omitempty"`         // Last email seen from the provider
	FirstName      string        `json:"firstName,omitempty"`
	LastName       string        `json:"lastName,omitempty"`
	Mobile         string        `json:"mobile,omitempty"`        // Self-service contact number
	Roles          []string      `json:"roles,omitempty"`         // Supported roles at last login
	Status         ProfileStatus `json:"status"`                  // INCOMPLETE until names are filled in
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	LastLoginAt    time.Time     `json:"lastLoginAt,omitempty"`
}

// ProfileUpdate carries the self-service fields. Nil fields are left as they are.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Mobile    *string
}

// UserIDFor derives the directory id from a provider subject.
func UserIDFor(providerUserID string) string {
	return "usr_" + strings.ReplaceAll(providerUserID, "-", "")
}

// DirectoryKey is the idempotency key of a provider identity.
func DirectoryKey(realm, providerUserID string) string {
	return realm + ":" + providerUserID
}

// ComputeStatus is COMPLETE once both names are present.
func ComputeStatus(firstName, lastName string) ProfileStatus {
	if strings.TrimSpace(firstName) != "" && strings.TrimSpace(lastName) != "" {
		return StatusComplete
	}
	return StatusIncomplete
}

func (p *Profile) IsNew() bool {
	return p.Status == StatusIncomplete
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}
