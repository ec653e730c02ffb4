package auth

import (
	"context"
	"regexp"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
)

var mobilePattern = regexp.MustCompile(`^\+?[0-9 ]{6,20}$`)

var errUserNotFound = apperrors.NotFound(apperrors.CodeUserNotFound, "user not found")

func (s *Service) GetMe(ctx context.Context, userID string) (*users.Profile, error) {
	profile, err := s.repos.Users.GetByUserID(ctx, userID)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, errUserNotFound
	}
	return profile, errors.Wrap(err, "[Service.GetMe] read profile")
}

// UpdateMe applies the self-service fields. The profile becomes COMPLETE
// once both names are set.
func (s *Service) UpdateMe(ctx context.Context, userID string, update users.ProfileUpdate) (*users.Profile, error) {
	update.FirstName = trimmed(update.FirstName)
	update.LastName = trimmed(update.LastName)
	update.Mobile = trimmed(update.Mobile)
	if update.Mobile != nil && *update.Mobile != "" && !mobilePattern.MatchString(*update.Mobile) {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "mobile number is not valid").WithDetail("field", "mobile")
	}

	profile, err := s.repos.Users.Update(ctx, userID, update)
	if errors.Is(err, users.ErrUserNotFound) {
		return nil, errUserNotFound
	}
	return profile, errors.Wrap(err, "[Service.UpdateMe] update profile")
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
