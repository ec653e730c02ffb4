package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AppName        string   `env:"APP_NAME" envDefault:"Auth Gateway"`
	Env            string   `env:"ENV" envDefault:"DEV"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL        string   `env:"BASE_URL" envDefault:"http://localhost:8080"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","` // CIDRs allowed to set X-Forwarded-For
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return fmt.Sprintf(":%s", e.Port)
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetTrustedProxies() []string {
	return trimAll(e.TrustedProxies)
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetBaseURL returns the externally visible URL of this service (e.g., "https://auth.example.com")
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}
