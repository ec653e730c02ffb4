package users

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the profile store in front of the identity provider.
//
// CreateOrGetFromIdentity is an idempotent upsert keyed by
// realm:providerUserId; created reports whether the profile is new.
type Directory interface {
	CreateOrGetFromIdentity(ctx context.Context, identity Identity) (profile *Profile, created bool, err error)
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	Update(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error)
	Delete(ctx context.Context, userID string) error
}
