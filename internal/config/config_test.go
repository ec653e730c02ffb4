package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:8090", c.GetIDPBaseURL())
	require.Equal(t, "authservice", c.GetIDPRealm())
	require.Equal(t, "authservice-client", c.GetIDPClientID())
	require.Equal(t, 3*time.Second, c.GetIDPTimeout())
	require.Equal(t, 300*time.Second, c.GetFlowTTL())
	require.Equal(t, []string{"customer", "admin", "support_agent", "airline_ops"}, c.GetSupportedRoles())
	require.Equal(t, []string{"OPS_AGENT"}, c.GetCorpSupportedRoles())
	require.Equal(t, config.StoreBackendMemory, c.GetStoreBackend())
	require.Equal(t, 600*time.Second, c.GetStepUpTokenTTL())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", ":9000")
	t.Setenv("IDP_TIMEOUT", "1500ms")
	t.Setenv("IDP_SUPPORTED_ROLES", "customer, admin")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("IDP_TOKEN_URL", "https://idp.example/token")
	t.Setenv("FLOW_ALLOWED_REDIRECT_URIS", "https://app.example/cb,https://app.example/cb2")

	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 1500*time.Millisecond, c.GetIDPTimeout())
	require.Equal(t, []string{"customer", "admin"}, c.GetSupportedRoles())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("https://c.example"))
	require.Equal(t, "https://idp.example/token", c.GetIDPEndpointOverrides().Token)
	require.Equal(t, "https://app.example/cb", c.GetDefaultRedirectURI())
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("FLOW_TTL", "soon")
	_, err := config.New()
	require.Error(t, err)
}

func TestSigningKeysOutsideDev(t *testing.T) {
	const (
		stepUpKey = "prod-step-up-key-0123456789abcdef0123"
		corpKey   = "prod-corp-key-0123456789abcdef0123456"
	)
	cases := map[string]struct {
		stepUp string
		corp   string
	}{
		"default keys":       {},
		"default corp key":   {stepUp: stepUpKey},
		"default step-up":    {corp: corpKey},
		"short corp key":     {stepUp: stepUpKey, corp: "too-short"},
		"keys are identical": {stepUp: stepUpKey, corp: stepUpKey},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("ENV", "PROD")
			t.Setenv("OTP_DELIVERY_URL", "https://notify.internal/otp")
			if tc.stepUp != "" {
				t.Setenv("STEP_UP_SIGNING_KEY", tc.stepUp)
			}
			if tc.corp != "" {
				t.Setenv("CORP_SIGNING_KEY", tc.corp)
			}
			_, err := config.New()
			require.Error(t, err)
		})
	}

	t.Run("configured keys", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("OTP_DELIVERY_URL", "https://notify.internal/otp")
		t.Setenv("STEP_UP_SIGNING_KEY", stepUpKey)
		t.Setenv("CORP_SIGNING_KEY", corpKey)
		c, err := config.New()
		require.NoError(t, err)
		require.Equal(t, []byte(corpKey), c.GetCorpSigningKey())
		require.Equal(t, "https://notify.internal/otp", c.GetOTPDeliveryURL())
	})

	t.Run("no code delivery", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("STEP_UP_SIGNING_KEY", stepUpKey)
		t.Setenv("CORP_SIGNING_KEY", corpKey)
		_, err := config.New()
		require.ErrorContains(t, err, "OTP_DELIVERY_URL")
	})
}

func TestDevKeysAllowedInDev(t *testing.T) {
	c, err := config.New()
	require.NoError(t, err)
	require.NotEmpty(t, c.GetCorpSigningKey())
}

func TestCorpMembershipLists(t *testing.T) {
	t.Setenv("CORP_ALLOWED_EMAIL_DOMAINS", " Corp.Example ,ops.example")
	t.Setenv("CORP_ALLOWED_EMAILS", "Contractor@Partner.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1/32")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, []string{"corp.example", "ops.example"}, c.GetCorpEmailDomains())
	require.Equal(t, []string{"contractor@partner.example"}, c.GetCorpAllowedEmails())
	require.Equal(t, []string{"10.0.0.0/8", "127.0.0.1/32"}, c.GetTrustedProxies())
}
