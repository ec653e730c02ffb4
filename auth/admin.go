package auth

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/idp"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	errAdminDisabled = apperrors.New(apperrors.KindNotFound, apperrors.CodeInvalidRequest, "user administration is not enabled")
	errUserExists    = apperrors.Conflict(apperrors.CodeUserExists, "a user with this username or email already exists")
)

// ProvisionUser creates an account at the provider holding exactly one role
// and adds its profile to the directory. The provider account is deleted
// again if the directory insert fails.
func (s *Service) ProvisionUser(ctx context.Context, req ProvisionUserRequest) (*users.Profile, error) {
	if s.admin == nil {
		return nil, errAdminDisabled
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" || req.Email == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, "username and email are required")
	}
	if !s.cfg.PublicRoles.IsSupported(req.Role) {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRole, "role is not supported").WithDetail("role", req.Role)
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidRequest, err.Error()).WithDetail("field", "password")
	}

	exists, err := s.admin.UserExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ProvisionUser] check username")
	}
	if !exists {
		if exists, err = s.admin.UserExistsByEmail(ctx, req.Email); err != nil {
			return nil, errors.Wrap(err, "[Service.ProvisionUser] check email")
		}
	}
	if exists {
		return nil, errUserExists
	}

	providerID, err := s.admin.CreateUser(ctx, idp.NewUser{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ProvisionUser] create user")
	}

	profile, _, err := s.repos.Users.CreateOrGetFromIdentity(ctx, users.Identity{
		ProviderUserID: providerID,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Realm:          users.RealmPublic,
		Roles:          []string{req.Role},
	})
	if err != nil {
		if delErr := s.admin.DeleteUser(context.WithoutCancel(ctx), providerID); delErr != nil {
			log.Err(delErr).Str("provider_user_id", providerID).Msg("Failed to delete provider user after directory failure")
		}
		return nil, errors.Wrap(err, "[Service.ProvisionUser] create profile")
	}
	log.Info().Str("user_id", profile.UserID).Str("role", req.Role).Msg("User provisioned")
	return profile, nil
}

// ChangeUserRole makes role the only supported role of the provider account.
func (s *Service) ChangeUserRole(ctx context.Context, providerUserID, role string) error {
	if s.admin == nil {
		return errAdminDisabled
	}
	if err := s.admin.AssignExclusiveRealmRole(ctx, providerUserID, role); err != nil {
		return errors.Wrap(err, "[Service.ChangeUserRole] assign role")
	}
	log.Info().Str("provider_user_id", providerUserID).Str("role", role).Msg("User role changed")
	return nil
}

// DeprovisionUser deletes the provider account, then its profile and
// sessions.
func (s *Service) DeprovisionUser(ctx context.Context, providerUserID string) error {
	if s.admin == nil {
		return errAdminDisabled
	}
	if err := s.admin.DeleteUser(ctx, providerUserID); err != nil {
		return errors.Wrap(err, "[Service.DeprovisionUser] delete provider user")
	}
	userID := users.UserIDFor(providerUserID)
	if err := s.repos.Users.Delete(ctx, userID); err != nil && !errors.Is(err, users.ErrUserNotFound) {
		return errors.Wrap(err, "[Service.DeprovisionUser] delete profile")
	}
	if _, err := s.RevokeAllSessions(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("user_id", userID).Msg("User deprovisioned")
	return nil
}
