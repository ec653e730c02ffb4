// Package idptest runs an in-process fake of the Keycloak endpoints used by
// package idp: token, userinfo, revoke, logout and the admin user and role
// API.
package idptest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-gateway/idp"
	"github.com/stretchr/testify/require"
)

const (
	Realm        = "authservice"
	ClientID     = "authservice-client"
	ClientSecret = "client-secret"
	AdminID      = "authservice-admin"
	AdminSecret  = "admin-secret"
	AuthCode     = "good-code"
)

// Identity is the account the fake logs in when a code is redeemed.
type Identity struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Roles      []string
	SessionID  string // sid claim; a fresh one is assigned per code exchange when empty
}

// Failure forces an endpoint to answer with a fixed status and OAuth2 error.
type Failure struct {
	Status      int
	Error       string
	Description string
}

type account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
	Verified bool   `json:"emailVerified"`
	roles    []string
}

type role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Server is a fake identity provider. Behaviour is adjusted through its
// setter methods, which are safe to call while requests are in flight.
type Server struct {
	*httptest.Server
	Key *rsa.PrivateKey

	mu            sync.Mutex
	identity      Identity
	tokenFailure  *Failure
	logoutStatus  int
	failAssign    int
	refreshTokens map[string]Identity
	accounts      map[string]*account
	roles         map[string]role
	verifiers     []string
	calls         []string
}

// New starts a fake that knows the given realm roles. It is closed when the
// test ends.
func New(t *testing.T, realmRoles ...string) *Server {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	s := &Server{
		Key:           key,
		refreshTokens: map[string]Identity{},
		accounts:      map[string]*account{},
		roles:         map[string]role{},
		identity: Identity{
			Subject:    "3f1c2a4e-7b5d-4a9c-8e21-0d6f9b3c5a17",
			Email:      "jane@example.com",
			GivenName:  "Jane",
			FamilyName: "Doe",
			Roles:      []string{"customer"},
		},
	}
	for _, name := range realmRoles {
		s.roles[name] = role{ID: "role-" + name, Name: name}
	}

	mux := http.NewServeMux()
	protocol := "/realms/" + Realm + "/protocol/openid-connect"
	admin := "/admin/realms/" + Realm
	mux.HandleFunc("POST "+protocol+"/token", s.token)
	mux.HandleFunc("GET "+protocol+"/userinfo", s.userInfo)
	mux.HandleFunc("POST "+protocol+"/revoke", s.revoke)
	mux.HandleFunc("POST "+protocol+"/logout", s.logout)
	mux.HandleFunc("GET "+admin+"/users", s.admin(s.findUsers))
	mux.HandleFunc("POST "+admin+"/users", s.admin(s.createUser))
	mux.HandleFunc("PUT "+admin+"/users/{id}", s.admin(s.updateUser))
	mux.HandleFunc("DELETE "+admin+"/users/{id}", s.admin(s.deleteUser))
	mux.HandleFunc("GET "+admin+"/users/{id}/role-mappings/realm", s.admin(s.getMappings))
	mux.HandleFunc("POST "+admin+"/users/{id}/role-mappings/realm", s.admin(s.addMappings))
	mux.HandleFunc("DELETE "+admin+"/users/{id}/role-mappings/realm", s.admin(s.removeMappings))
	mux.HandleFunc("GET "+admin+"/roles/{name}", s.admin(s.getRole))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Endpoints are the Keycloak endpoints of the fake.
func (s *Server) Endpoints() idp.Endpoints {
	return idp.KeycloakEndpoints(s.URL, Realm)
}

// Config is a client configuration pointing at the fake.
func (s *Server) Config() idp.Config {
	return idp.Config{
		Endpoints:         s.Endpoints(),
		ClientID:          ClientID,
		ClientSecret:      ClientSecret,
		AdminClientID:     AdminID,
		AdminClientSecret: AdminSecret,
		Realm:             "PUBLIC",
		Timeout:           2 * time.Second,
	}
}

// KeySet verifies tokens signed by the fake without fetching a JWKS.
func (s *Server) KeySet() oidc.KeySet {
	return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.Key.PublicKey}}
}

// NewClient builds an idp.Client bound to the fake.
func (s *Server) NewClient(t *testing.T, options ...idp.Option) *idp.Client {
	t.Helper()
	options = append([]idp.Option{idp.WithKeySet(s.KeySet())}, options...)
	client, err := idp.New(s.Config(), options...)
	require.NoError(t, err)
	return client
}

func (s *Server) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// FailToken makes the token endpoint answer every grant with f. nil resets.
func (s *Server) FailToken(f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenFailure = f
}

// FailLogout makes revoke and logout answer with status. 0 resets.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutStatus = status
}

// FailRoleAssignments makes the next n role mapping POSTs fail with 500.
func (s *Server) FailRoleAssignments(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAssign = n
}

// AddUser registers an existing account holding roles.
func (s *Server) AddUser(id, username, email string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = &account{ID: id, Username: username, Email: email, Enabled: true, roles: roles}
}

// UserRoles returns the realm roles mapped to an account, or nil when the
// account does not exist.
func (s *Server) UserRoles(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return append([]string{}, a.roles...)
	}
	return nil
}

func (s *Server) HasUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok
}

// Verifiers returns the PKCE verifiers received with authorization codes.
func (s *Server) Verifiers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.verifiers...)
}

// Calls returns the endpoints hit so far, in order.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.calls...)
}

// AccessToken signs an access token for id the way the provider would.
func (s *Server) AccessToken(id Identity, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":                s.Endpoints().Issuer,
		"sub":                id.Subject,
		"azp":                ClientID,
		"typ":                "Bearer",
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		"email":              id.Email,
		"preferred_username": id.Email,
		"given_name":         id.GivenName,
		"family_name":        id.FamilyName,
		"scope":              "openid email profile",
		"realm_access":       map[string]any{"roles": append([]string{"offline_access"}, id.Roles...)},
	}
	if id.SessionID != "" {
		claims["sid"] = id.SessionID
	}
	return s.sign(claims)
}

func (s *Server) idToken(id Identity) string {
	now := time.Now()
	return s.sign(jwt.MapClaims{
		"iss":         s.Endpoints().Issuer,
		"sub":         id.Subject,
		"aud":         ClientID,
		"iat":         now.Unix(),
		"exp":         now.Add(5 * time.Minute).Unix(),
		"email":       id.Email,
		"given_name":  id.GivenName,
		"family_name": id.FamilyName,
	})
}

func (s *Server) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.Key)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	grant := r.PostForm.Get("grant_type")
	s.record("token:" + grant)

	s.mu.Lock()
	failure := s.tokenFailure
	identity := s.identity
	s.mu.Unlock()
	if failure != nil {
		oauthError(w, failure.Status, failure.Error, failure.Description)
		return
	}

	switch grant {
	case "authorization_code":
		if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
			oauthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client credentials")
			return
		}
		if r.PostForm.Get("code") != AuthCode {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "Code not valid")
			return
		}
		s.mu.Lock()
		s.verifiers = append(s.verifiers, r.PostForm.Get("code_verifier"))
		s.mu.Unlock()
		if identity.SessionID == "" {
			identity.SessionID = uuid.NewString()
		}
		s.issue(w, identity, true)
	case "refresh_token":
		s.mu.Lock()
		id, ok := s.refreshTokens[r.PostForm.Get("refresh_token")]
		delete(s.refreshTokens, r.PostForm.Get("refresh_token"))
		s.mu.Unlock()
		if !ok {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "Token is not active")
			return
		}
		s.issue(w, id, false)
	case "client_credentials":
		if r.PostForm.Get("client_id") != AdminID || r.PostForm.Get("client_secret") != AdminSecret {
			oauthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client or Invalid client credentials")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "admin-" + uuid.NewString(),
			"token_type":   "Bearer",
			"expires_in":   60,
		})
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", grant)
	}
}

func (s *Server) issue(w http.ResponseWriter, id Identity, withIDToken bool) {
	refresh := "rt-" + uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[refresh] = id
	s.mu.Unlock()

	body := map[string]any{
		"access_token":       s.AccessToken(id, 5*time.Minute),
		"refresh_token":      refresh,
		"token_type":         "Bearer",
		"expires_in":         300,
		"refresh_expires_in": 1800,
		"scope":              "openid email profile",
	}
	if withIDToken {
		body["id_token"] = s.idToken(id)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	s.record("userinfo")
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return &s.Key.PublicKey, nil })
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":         claims["sub"],
		"email":       claims["email"],
		"given_name":  claims["given_name"],
		"family_name": claims["family_name"],
	})
}

// revoke drops the posted token. Unknown tokens still succeed, as RFC 7009
// requires.
func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if !s.formAuthorized(w, r, "revoke") {
		return
	}
	s.mu.Lock()
	delete(s.refreshTokens, r.PostForm.Get("token"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// logout ends the session of the posted refresh token. Like Keycloak it
// answers invalid_grant for a token it no longer knows.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if !s.formAuthorized(w, r, "logout") {
		return
	}
	token := r.PostForm.Get("refresh_token")
	s.mu.Lock()
	_, ok := s.refreshTokens[token]
	delete(s.refreshTokens, token)
	s.mu.Unlock()
	if !ok {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) formAuthorized(w http.ResponseWriter, r *http.Request, name string) bool {
	s.record(name)
	s.mu.Lock()
	status := s.logoutStatus
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return false
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_id") != ClientID {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

// RefreshTokenActive reports whether token can still be redeemed.
func (s *Server) RefreshTokenActive(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.refreshTokens[token]
	return ok
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer admin-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.record(r.Method + " " + strings.TrimPrefix(r.URL.Path, "/admin/realms/"+Realm))
		s.mu.Lock()
		defer s.mu.Unlock()
		next(w, r)
	}
}

func (s *Server) findUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	found := []account{}
	for _, a := range s.accounts {
		if (q.Has("username") && a.Username == q.Get("username")) || (q.Has("email") && a.Email == q.Get("email")) {
			found = append(found, *a)
		}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in account
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, a := range s.accounts {
		if a.Username == in.Username || (in.Email != "" && a.Email == in.Email) {
			writeJSON(w, http.StatusConflict, map[string]string{"errorMessage": "User exists with same username"})
			return
		}
	}
	id := uuid.NewString()
	s.accounts[id] = &account{ID: id, Username: in.Username, Email: in.Email}
	w.Header().Set("Location", s.URL+"/admin/realms/"+Realm+"/users/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accounts[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var in account
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	a.Enabled, a.Verified = in.Enabled, in.Verified
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.accounts[r.PathValue("id")]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(s.accounts, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getMappings(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accounts[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	out := []role{}
	for _, name := range a.roles {
		out = append(out, role{ID: "role-" + name, Name: name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addMappings(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accounts[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if s.failAssign > 0 {
		s.failAssign--
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	var in []role
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, rl := range in {
		if !contains(a.roles, rl.Name) {
			a.roles = append(a.roles, rl.Name)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMappings(w http.ResponseWriter, r *http.Request) {
	a, ok := s.accounts[r.PathValue("id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var in []role
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	kept := a.roles[:0]
	for _, name := range a.roles {
		drop := false
		for _, rl := range in {
			drop = drop || rl.Name == name
		}
		if !drop {
			kept = append(kept, name)
		}
	}
	a.roles = kept
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	rl, ok := s.roles[r.PathValue("name")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Could not find role"})
		return
	}
	writeJSON(w, http.StatusOK, rl)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
