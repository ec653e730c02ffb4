package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-auth-gateway/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewUser is an account to provision at the provider.
type NewUser struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      string
}

type roleRepresentation struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username,omitempty"`
	Email         string                     `json:"email,omitempty"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
}

// FetchAdminAccessToken obtains a service token with the client credentials
// grant. Any failure, including a reply without an access token, is
// reported as the provider being unavailable.
func (c *Client) FetchAdminAccessToken(ctx context.Context) (token string, err error) {
	start := time.Now()
	defer func() { c.observe("admin_token", start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	cc := clientcredentials.Config{
		ClientID:     c.cfg.AdminClientID,
		ClientSecret: c.cfg.AdminClientSecret,
		TokenURL:     c.cfg.Endpoints.Token,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		log.Err(err).Str("client_id", c.cfg.AdminClientID).Msg("Admin token request failed")
		return "", unavailable("admin token", err)
	}
	if tok.AccessToken == "" {
		return "", unavailable("admin token", errors.New("reply has no access_token"))
	}
	return tok.AccessToken, nil
}

// UserExistsByUsername reports whether an exact username match exists.
func (c *Client) UserExistsByUsername(ctx context.Context, username string) (bool, error) {
	return c.userExists(ctx, "username", username)
}

// UserExistsByEmail reports whether an exact email match exists.
func (c *Client) UserExistsByEmail(ctx context.Context, email string) (bool, error) {
	return c.userExists(ctx, "email", email)
}

func (c *Client) userExists(ctx context.Context, field, value string) (bool, error) {
	token, err := c.FetchAdminAccessToken(ctx)
	if err != nil {
		return false, err
	}
	q := url.Values{field: {value}, "exact": {"true"}}
	var found []userRepresentation
	if _, err := c.adminCall(ctx, token, "find_user", http.MethodGet, c.cfg.Endpoints.AdminUsers+"?"+q.Encode(), nil, &found); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// CreateUser creates an enabled, verified account holding exactly
// u.Role and returns its provider id. If the follow-up steps fail the
// account is deleted again.
func (c *Client) CreateUser(ctx context.Context, u NewUser) (string, error) {
	if !c.roles.IsSupported(u.Role) {
		return "", apperrors.BadRequest(apperrors.CodeInvalidRole, "role is not supported").WithDetail("role", u.Role)
	}
	token, err := c.FetchAdminAccessToken(ctx)
	if err != nil {
		return "", err
	}

	rep := userRepresentation{
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Enabled:       true,
		EmailVerified: true,
	}
	if u.Password != "" {
		rep.Credentials = []credentialRepresentation{{Type: "password", Value: u.Password}}
	}
	resp, err := c.adminCall(ctx, token, "create_user", http.MethodPost, c.cfg.Endpoints.AdminUsers, rep, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return "", apperrors.WrapKind(err, apperrors.KindConflict, apperrors.CodeUserExists, "user already exists")
		}
		return "", err
	}
	userID := path.Base(strings.TrimRight(resp.Header.Get("Location"), "/"))
	if userID == "" || userID == "." || userID == "/" {
		return "", apperrors.BadGateway(nil, apperrors.CodeProviderError, "create user reply has no Location")
	}

	if err := c.markUserReady(ctx, token, userID); err != nil {
		c.cleanupUser(ctx, userID)
		return "", err
	}
	if err := c.AssignExclusiveRealmRole(ctx, userID, u.Role); err != nil {
		c.cleanupUser(ctx, userID)
		return "", err
	}
	return userID, nil
}

func (c *Client) markUserReady(ctx context.Context, token, userID string) error {
	body := map[string]bool{"enabled": true, "emailVerified": true}
	_, err := c.adminCall(ctx, token, "mark_user_ready", http.MethodPut, c.userURL(userID), body, nil)
	return err
}

func (c *Client) cleanupUser(ctx context.Context, userID string) {
	if err := c.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		log.Err(err).Str("provider_user_id", userID).Msg("Failed to delete partially provisioned user")
	}
}

// DeleteUser removes an account. Deleting an unknown account succeeds.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	token, err := c.FetchAdminAccessToken(ctx)
	if err != nil {
		return err
	}
	_, err = c.adminCall(ctx, token, "delete_user", http.MethodDelete, c.userURL(userID), nil, nil)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// RealmRoles returns the account's current realm role names.
func (c *Client) RealmRoles(ctx context.Context, userID string) ([]string, error) {
	token, err := c.FetchAdminAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	mapped, err := c.realmMappings(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(mapped))
	for _, r := range mapped {
		names = append(names, r.Name)
	}
	return names, nil
}

// AssignExclusiveRealmRole leaves the account holding role as its only
// supported realm role. If the assignment fails after the clear, the
// previous supported roles are restored before the error is returned.
func (c *Client) AssignExclusiveRealmRole(ctx context.Context, userID, role string) error {
	if !c.roles.IsSupported(role) {
		return apperrors.BadRequest(apperrors.CodeInvalidRole, "role is not supported").WithDetail("role", role)
	}
	token, err := c.FetchAdminAccessToken(ctx)
	if err != nil {
		return err
	}

	current, err := c.realmMappings(ctx, token, userID)
	if err != nil {
		return err
	}
	var previous []roleRepresentation
	for _, r := range current {
		if c.roles.IsSupported(r.Name) {
			previous = append(previous, r)
		}
	}

	supported, target, err := c.supportedRoleRepresentations(ctx, token, role)
	if err != nil {
		return err
	}
	if target == nil {
		return apperrors.BadRequest(apperrors.CodeInvalidRole, "role does not exist at the identity provider").WithDetail("role", role)
	}

	mappingsURL := c.userURL(userID) + "/role-mappings/realm"
	if len(supported) > 0 {
		if _, err := c.adminCall(ctx, token, "clear_roles", http.MethodDelete, mappingsURL, supported, nil); err != nil {
			return err
		}
	}
	_, assignErr := c.adminCall(ctx, token, "assign_role", http.MethodPost, mappingsURL, []roleRepresentation{*target}, nil)
	if assignErr == nil {
		return nil
	}
	if len(previous) == 0 {
		return assignErr
	}
	rollbackCtx := context.WithoutCancel(ctx)
	if _, rbErr := c.adminCall(rollbackCtx, token, "restore_roles", http.MethodPost, mappingsURL, previous, nil); rbErr != nil {
		log.Err(rbErr).Str("provider_user_id", userID).Str("role", role).Msg("Role rollback failed")
		return errors.Wrapf(assignErr, "[Client.AssignExclusiveRealmRole] rollback failed: %v", rbErr)
	}
	log.Warn().Str("provider_user_id", userID).Str("role", role).Msg("Role assignment failed, previous roles restored")
	return assignErr
}

func (c *Client) realmMappings(ctx context.Context, token, userID string) ([]roleRepresentation, error) {
	var mapped []roleRepresentation
	_, err := c.adminCall(ctx, token, "get_roles", http.MethodGet, c.userURL(userID)+"/role-mappings/realm", nil, &mapped)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound(apperrors.CodeUserNotFound, "user not found at identity provider")
	}
	return mapped, err
}

// supportedRoleRepresentations looks up every whitelisted role that exists
// in the realm. Roles the realm does not define are skipped.
func (c *Client) supportedRoleRepresentations(ctx context.Context, token, target string) ([]roleRepresentation, *roleRepresentation, error) {
	var (
		all   []roleRepresentation
		found *roleRepresentation
	)
	for _, name := range c.roles.Supported() {
		var rep roleRepresentation
		_, err := c.adminCall(ctx, token, "get_role", http.MethodGet, c.cfg.Endpoints.AdminRoles+"/"+url.PathEscape(name), nil, &rep)
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if rep.Name == "" {
			rep.Name = name
		}
		all = append(all, rep)
		if name == target {
			r := rep
			found = &r
		}
	}
	return all, found, nil
}

func (c *Client) userURL(userID string) string {
	return c.cfg.Endpoints.AdminUsers + "/" + url.PathEscape(userID)
}

// adminCall performs one admin API request. in is JSON encoded when
// non-nil; out is decoded from a 2xx body when non-nil.
func (c *Client) adminCall(ctx context.Context, token, op, method, endpoint string, in, out any) (resp *http.Response, err error) {
	start := time.Now()
	defer func() { c.observe(op, start, err) }()
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.adminCall] encode body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.adminCall] build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp, statusError(op, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp, apperrors.BadGateway(err, apperrors.CodeProviderError, "unreadable identity provider response")
		}
	}
	return resp, nil
}
