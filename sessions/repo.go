package sessions

import (
	"context"
	"time"
)

// Repo manages the sessions of each user.
//
// Create never overwrites an existing session. GetByUserID returns an empty,
// non-nil slice when the user has none. Revoke and RevokeAll are idempotent:
// removing something that is already gone is not an error.
type Repo interface {
	Create(ctx context.Context, s NewSession) (UserSession, error)
	GetByUserID(ctx context.Context, userID string) ([]UserSession, error)
	Revoke(ctx context.Context, userID, sessionID string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
	Touch(ctx context.Context, userID, sessionID string, at time.Time) error
}
