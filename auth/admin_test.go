package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-auth-gateway/auth"
	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/stretchr/testify/require"
)

func validProvisionRequest() auth.ProvisionUserRequest {
	return auth.ProvisionUserRequest{
		Username:  "sam.agent",
		Email:     "Sam@Example.com",
		FirstName: "Sam",
		LastName:  "Agent",
		Password:  "Str0ngPassword",
		Role:      roles.SupportAgent,
	}
}

func TestProvisionUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	profile, err := f.service.ProvisionUser(ctx, validProvisionRequest())
	require.NoError(t, err)
	require.Equal(t, "sam@example.com", profile.Email)
	require.Equal(t, []string{roles.SupportAgent}, profile.Roles)
	require.True(t, f.fake.HasUser(profile.ProviderUserID))
	require.Equal(t, []string{roles.SupportAgent}, f.fake.UserRoles(profile.ProviderUserID))

	stored, err := f.directory.GetByUserID(ctx, profile.UserID)
	require.NoError(t, err)
	require.Equal(t, profile.ProviderUserID, stored.ProviderUserID)
}

func TestProvisionUserDuplicate(t *testing.T) {
	f := setupTestFixture(t)
	f.fake.AddUser("existing-1", "sam.agent", "other@example.com", roles.Customer)

	_, err := f.service.ProvisionUser(context.Background(), validProvisionRequest())
	require.Equal(t, http.StatusConflict, apperrors.HTTPStatus(err))
	require.Equal(t, apperrors.CodeUserExists, codeOf(t, err))
}

func TestProvisionUserDuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.fake.AddUser("existing-1", "someone", "sam@example.com", roles.Customer)

	_, err := f.service.ProvisionUser(context.Background(), validProvisionRequest())
	require.Equal(t, apperrors.CodeUserExists, codeOf(t, err))
}

func TestProvisionUserValidation(t *testing.T) {
	cases := map[string]func(*auth.ProvisionUserRequest){
		"weak password":    func(r *auth.ProvisionUserRequest) { r.Password = "password" },
		"short password":   func(r *auth.ProvisionUserRequest) { r.Password = "Ab1" },
		"missing email":    func(r *auth.ProvisionUserRequest) { r.Email = " " },
		"missing name":     func(r *auth.ProvisionUserRequest) { r.Username = "" },
		"unsupported role": func(r *auth.ProvisionUserRequest) { r.Role = roles.OpsAgent },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := setupTestFixture(t)
			req := validProvisionRequest()
			mutate(&req)

			_, err := f.service.ProvisionUser(context.Background(), req)
			require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
			require.NotContains(t, f.fake.Calls(), "POST /users")
		})
	}
}

func TestChangeUserRole(t *testing.T) {
	f := setupTestFixture(t)
	f.fake.AddUser("kc-1", "sam", "sam@example.com", roles.Customer, "offline_access")

	require.NoError(t, f.service.ChangeUserRole(context.Background(), "kc-1", roles.Admin))
	require.ElementsMatch(t, []string{"offline_access", roles.Admin}, f.fake.UserRoles("kc-1"))
}

func TestDeprovisionUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.fake.SetIdentity(identityFor("kc-2"))
	login := f.login(t)
	f.fake.AddUser("kc-2", "sam", "sam@example.com", roles.Customer)

	require.NoError(t, f.service.DeprovisionUser(ctx, "kc-2"))
	require.False(t, f.fake.HasUser("kc-2"))

	_, err := f.directory.GetByUserID(ctx, login.User.UserID)
	require.ErrorIs(t, err, users.ErrUserNotFound)
	list, err := f.service.ListSessions(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Empty(t, list)

	// deleting again is a no-op at the provider
	require.NoError(t, f.service.DeprovisionUser(ctx, "kc-2"))
}

func TestGetAndUpdateMe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	login := f.login(t)

	me, err := f.service.GetMe(ctx, login.User.UserID)
	require.NoError(t, err)
	require.Equal(t, users.StatusIncomplete, me.Status)

	updated, err := f.service.UpdateMe(ctx, login.User.UserID, users.ProfileUpdate{
		FirstName: ptr("  Jane "),
		LastName:  ptr("Doe"),
		Mobile:    ptr("+44 7700 900123"),
	})
	require.NoError(t, err)
	require.Equal(t, "Jane", updated.FirstName)
	require.Equal(t, users.StatusComplete, updated.Status)
	require.Equal(t, "+44 7700 900123", updated.Mobile)

	_, err = f.service.UpdateMe(ctx, login.User.UserID, users.ProfileUpdate{Mobile: ptr("call me")})
	require.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	_, err = f.service.GetMe(ctx, "usr_missing")
	require.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
	_, err = f.service.UpdateMe(ctx, "usr_missing", users.ProfileUpdate{FirstName: ptr("x")})
	require.Equal(t, apperrors.CodeUserNotFound, codeOf(t, err))
}
