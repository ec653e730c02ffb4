package server

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*roles.Claims, error)
}

// Authenticator binds a verifier to the realm its tokens belong to and the
// roles that realm supports.
type Authenticator struct {
	Realm    string
	Verifier TokenVerifier
	Roles    *roles.Extractor
}

// Dependencies holds what the HTTP surface needs besides configuration.
type Dependencies struct {
	Auth           *auth.Service
	Authenticators []Authenticator // tried in order
	Metrics        http.Handler    // served on /metrics when set
	Ready          func(ctx context.Context) error
}

type Server struct {
	env            string // Environment (e.g., "DEV", "PROD")
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	auth           *auth.Service
	authenticators []Authenticator
	metrics        http.Handler
	ready          func(ctx context.Context) error
	trustedProxies []netip.Prefix
}

func New(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil {
		return nil, errors.New("[Server New] auth service is required")
	}
	if len(deps.Authenticators) == 0 {
		return nil, errors.New("[Server New] at least one token authenticator is required")
	}
	for i, a := range deps.Authenticators {
		if a.Verifier == nil || a.Roles == nil {
			return nil, errors.Errorf("[Server New] authenticator %d needs a verifier and a role extractor", i)
		}
	}

	proxies, err := parseTrustedProxies(cfg.GetTrustedProxies())
	if err != nil {
		return nil, err
	}

	s := &Server{
		env:            cfg.GetEnv(),
		mux:            http.NewServeMux(),
		config:         cfg,
		auth:           deps.Auth,
		authenticators: deps.Authenticators,
		metrics:        deps.Metrics,
		ready:          deps.Ready,
		trustedProxies: proxies,
	}
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes returns the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + resetColor
	} else {
		displayMethod = gray + paddedMethod + resetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}
