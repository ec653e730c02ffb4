// Package authflow holds pending login flows between login-init and the
// identity provider callback.
package authflow

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFlowNotFound = errors.New("login flow not found")
	ErrEmptyState   = errors.New("state cannot be empty")
)

// LoginFlowState is a pending public (PKCE) login.
type LoginFlowState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"codeVerifier"`
	RedirectURI  string    `json:"redirectUri"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the flow can no longer be redeemed at now.
func (f *LoginFlowState) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Repo stores login flows keyed by state.
//
// Consume must remove and return the entry in one atomic step: a state is
// never returned twice, even to concurrent callers. Expiry is not checked
// by the repo.
type Repo interface {
	Save(ctx context.Context, flow *LoginFlowState) error
	Consume(ctx context.Context, state string) (*LoginFlowState, error)
}

// CorpFlowState is a pending corporate login awaiting its second factor.
type CorpFlowState struct {
	FlowID         string    `json:"flowId"`
	Email          string    `json:"email"`
	DeviceInfo     string    `json:"deviceInfo"`
	AllowedFactors []string  `json:"allowedFactors"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

func (f *CorpFlowState) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// Allows reports whether factor is one of the flow's allowed factors.
func (f *CorpFlowState) Allows(factor string) bool {
	for _, allowed := range f.AllowedFactors {
		if allowed == factor {
			return true
		}
	}
	return false
}

// CorpRepo stores corporate login flows. Get leaves the flow in place so a
// factor can be re-challenged; Consume has the same atomicity contract as
// Repo.Consume.
type CorpRepo interface {
	Save(ctx context.Context, flow *CorpFlowState) error
	Get(ctx context.Context, flowID string) (*CorpFlowState, error)
	Consume(ctx context.Context, flowID string) (*CorpFlowState, error)
}
