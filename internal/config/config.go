package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	IdentityProviderConfig
	FlowConfig
	StepUpConfig
	CorpConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetTrustedProxies() []string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	IdentityProvider
	Flow
	StepUp
	Corp
	Store
}

// New reads the configuration from the process environment. Unset variables
// take the defaults declared on each struct.
func New() (Config, error) {
	var c mainConfig
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config.New] failed to parse environment: %w", err)
	}
	if err := c.validateSigningKeys(); err != nil {
		return nil, err
	}
	if !strings.EqualFold(c.GetEnv(), "DEV") && c.GetOTPDeliveryURL() == "" {
		return nil, errors.New("[config.New] OTP_DELIVERY_URL must be set outside DEV")
	}
	return c, nil
}

// Local HS256 keys shipped as defaults. They are only accepted in DEV.
const (
	devStepUpSigningKey = "dev-step-up-signing-key-change-me-0001"
	devCorpSigningKey   = "dev-corp-signing-key-change-me-000001"
	minSigningKeyLength = 32
)

func (c mainConfig) validateSigningKeys() error {
	if strings.EqualFold(c.GetEnv(), "DEV") {
		return nil
	}
	keys := []struct {
		name, value, devValue string
	}{
		{"STEP_UP_SIGNING_KEY", c.StepUp.SigningKey, devStepUpSigningKey},
		{"CORP_SIGNING_KEY", c.Corp.SigningKey, devCorpSigningKey},
	}
	for _, k := range keys {
		if k.value == k.devValue {
			return fmt.Errorf("[config.New] %s must be set outside DEV", k.name)
		}
		if len(k.value) < minSigningKeyLength {
			return fmt.Errorf("[config.New] %s must be at least %d bytes", k.name, minSigningKeyLength)
		}
	}
	if c.StepUp.SigningKey == c.Corp.SigningKey {
		return errors.New("[config.New] STEP_UP_SIGNING_KEY and CORP_SIGNING_KEY must differ")
	}
	return nil
}
