package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-gateway/auth"
	"github.com/jrsteele09/go-auth-gateway/authflow"
	"github.com/jrsteele09/go-auth-gateway/idp"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/internal/kv"
	"github.com/jrsteele09/go-auth-gateway/internal/metrics"
	"github.com/jrsteele09/go-auth-gateway/mfa"
	"github.com/jrsteele09/go-auth-gateway/roles"
	"github.com/jrsteele09/go-auth-gateway/server"
	"github.com/jrsteele09/go-auth-gateway/sessions"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// application is the wired gateway. purgers sweep the in-memory stores,
// closers release backend connections.
type application struct {
	handler http.Handler
	purgers []func(now time.Time) int
	closers []func() error
}

// wire builds every dependency from c.
func wire(c config.Config) (*application, error) {
	app := &application{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	repos, challenges, ready, err := app.stores(c)
	if err != nil {
		return nil, err
	}

	endpoints := idp.KeycloakEndpoints(c.GetIDPBaseURL(), c.GetIDPRealm())
	o := c.GetIDPEndpointOverrides()
	endpoints = endpoints.Override(idp.Endpoints{
		Authorize:  o.Authorize,
		Token:      o.Token,
		UserInfo:   o.UserInfo,
		Revocation: o.Revocation,
		Logout:     o.Logout,
		JWKS:       o.JWKS,
		AdminUsers: o.AdminUsers,
		AdminRoles: o.AdminRoles,
	})
	provider, err := idp.New(idp.Config{
		Endpoints:         endpoints,
		ClientID:          c.GetIDPClientID(),
		ClientSecret:      c.GetIDPClientSecret(),
		AdminClientID:     c.GetIDPAdminClientID(),
		AdminClientSecret: c.GetIDPAdminClientSecret(),
		Scope:             c.GetIDPScope(),
		IDPHint:           c.GetIDPHint(),
		Realm:             users.RealmPublic,
		Timeout:           c.GetIDPTimeout(),
		SupportedRoles:    c.GetSupportedRoles(),
	}, idp.WithMetrics(collector))
	if err != nil {
		return nil, errors.Wrap(err, "create identity provider client")
	}

	sender, err := codeSender(c)
	if err != nil {
		return nil, err
	}
	mfaService, err := mfa.NewService(mfa.Config{
		OTPTTL:         c.GetOTPTTL(),
		ResendAfter:    c.GetOTPResendAfter(),
		MaxAttempts:    c.GetOTPMaxAttempts(),
		RPID:           c.GetWebAuthnRPID(),
		PasskeyTimeout: c.GetWebAuthnTimeout(),
	}, challenges, sender)
	if err != nil {
		return nil, errors.Wrap(err, "create mfa service")
	}
	members := auth.NewCorpMembership(c.GetCorpEmailDomains(), c.GetCorpAllowedEmails())
	if members.Empty() {
		log.Warn().Msg("No corporate email domains or addresses configured; corporate login refuses everyone")
	}
	corpRoles := roles.NewExtractor("", c.GetCorpSupportedRoles()...)
	corpTokens, err := auth.NewCorpTokenIssuer(c.GetCorpSigningKey(), "authgw-"+strings.ToLower(c.GetCorpRealm()), c.GetCorpDefaultRole(), c.GetCorpTokenTTL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create corporate token issuer")
	}
	stepUp, err := auth.NewStepUpIssuer(c.GetStepUpSigningKey(), c.GetAppName(), c.GetStepUpTokenTTL(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create step-up token issuer")
	}

	service, err := auth.NewService(repos, provider, auth.Config{
		FlowTTL:             c.GetFlowTTL(),
		AllowedRedirectURIs: c.GetAllowedRedirectURIs(),
		Scope:               c.GetIDPScope(),
		PublicRoles:         provider.Roles(),
		CorpRoles:           corpRoles,
		CorpMembers:         members,
	},
		auth.WithMetrics(collector),
		auth.WithUserAdmin(provider),
		auth.WithMFA(mfaService, corpTokens, stepUp),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create auth service")
	}

	handler, err := server.New(c, server.Dependencies{
		Auth: service,
		Authenticators: []server.Authenticator{
			{Realm: users.RealmPublic, Verifier: provider, Roles: provider.Roles()},
			{Realm: users.RealmCorp, Verifier: corpTokens, Roles: corpRoles},
		},
		Metrics: metrics.Handler(registry),
		Ready:   ready,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create server")
	}
	app.handler = handler
	return app, nil
}

// codeSender posts codes to OTP_DELIVERY_URL when it is set. Without it codes
// are only logged, and revealed in DEV.
func codeSender(c config.Config) (mfa.Sender, error) {
	if url := c.GetOTPDeliveryURL(); url != "" {
		sender, err := mfa.NewHTTPSender(url, c.GetOTPDeliveryToken(), &http.Client{Timeout: c.GetIDPTimeout()})
		if err != nil {
			return nil, errors.Wrap(err, "create code sender")
		}
		log.Info().Msg("Delivering one-time codes over HTTP")
		return sender, nil
	}
	log.Warn().Msg("OTP_DELIVERY_URL not set; one-time codes are only written to the log")
	return mfa.LogSender{RevealCodes: c.GetEnv() == "DEV"}, nil
}

// stores picks the flow, session and challenge backends. The user directory
// is always in memory.
func (app *application) stores(c config.Config) (auth.Repos, kv.Store[mfa.Challenge], func(context.Context) error, error) {
	directory := users.NewInMemoryDirectory(time.Now)

	switch c.GetStoreBackend() {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		app.closers = append(app.closers, client.Close)
		prefix := c.GetRedisKeyPrefix()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", c.GetRedisAddr()).Msg("Redis not reachable at startup")
		}
		log.Info().Str("addr", c.GetRedisAddr()).Str("prefix", prefix).Msg("Using Redis stores")
		return auth.Repos{
				Flows:     authflow.NewRedisRepo(client, prefix),
				CorpFlows: authflow.NewRedisCorpRepo(client, prefix),
				Sessions:  sessions.NewRedisRepo(client, prefix),
				Users:     directory,
			},
			kv.NewRedis[mfa.Challenge](client, prefix+"challenge:"),
			func(ctx context.Context) error { return client.Ping(ctx).Err() },
			nil
	case config.StoreBackendMemory, "":
		flows := authflow.NewInMemoryRepo()
		corpFlows := authflow.NewInMemoryCorpRepo()
		challenges := kv.NewMemory[mfa.Challenge](time.Now)
		app.purgers = append(app.purgers, flows.PurgeExpired, corpFlows.PurgeExpired, func(time.Time) int { return challenges.PurgeExpired() })
		log.Info().Msg("Using in-memory stores")
		return auth.Repos{
			Flows:     flows,
			CorpFlows: corpFlows,
			Sessions:  sessions.NewInMemoryRepo(),
			Users:     directory,
		}, challenges, nil, nil
	default:
		return auth.Repos{}, nil, nil, errors.Errorf("unknown store backend %q", c.GetStoreBackend())
	}
}

// purge sweeps expired records from the in-memory stores until ctx ends.
func (app *application) purge(ctx context.Context, every time.Duration) {
	if len(app.purgers) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed := 0
			for _, p := range app.purgers {
				removed += p(now)
			}
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("Purged expired records")
			}
		}
	}
}

func (app *application) Close() {
	for _, c := range app.closers {
		if err := c(); err != nil {
			log.Err(err).Msg("Failed to close backend")
		}
	}
}
