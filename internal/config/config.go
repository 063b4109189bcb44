package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	DomainConfig
	AuthServiceConfig
	StoreConfig
	CorsConfig
	GuardConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetDatabaseURL() string
	GetRedisURL() string
	GetTranslateURL() string
	GetDefaultLanguage() string
	GetOTLPEndpoint() string
}

type DomainConfig interface {
	GetPublicHost() string
	GetParentDomain() string
	GetFleetAppURL() string
}

type AuthServiceConfig interface {
	GetAuthServiceURL() string
	GetAuthServiceAnonKey() string
	GetAuthServiceServiceKey() string
	GetAuthJWKSURL() string
	GetAuthIssuer() string
	GetProvisioningKey() string
}

type StoreConfig interface {
	GetSessionStorageKey() string
	GetSessionCookieMaxAge() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type GuardConfig interface {
	GetPostLoginRedirectDelay() time.Duration
	GetSigninAttemptsPerWindow() int
	GetSigninWindow() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
}

// New reads the process environment.
func New() (Config, error) {
	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("[config New] parse env: %w", err)
	}
	return FromEnvVars(vars)
}

// FromEnvVars validates vars and wraps them as a Config.
func FromEnvVars(vars EnvVars) (Config, error) {
	vars.ParentDomain = strings.Trim(strings.ToLower(strings.TrimSpace(vars.ParentDomain)), ".")
	if vars.ParentDomain == "" {
		return nil, fmt.Errorf("[config New] PARENT_DOMAIN must not be empty")
	}
	if vars.AuthServiceURL == "" {
		return nil, fmt.Errorf("[config New] AUTH_SERVICE_URL must not be empty")
	}
	if vars.SessionStorageKey == "" {
		return nil, fmt.Errorf("[config New] SESSION_STORAGE_KEY must not be empty")
	}
	if vars.SigninAttemptsPerWindow <= 0 {
		return nil, fmt.Errorf("[config New] SIGNIN_ATTEMPTS_PER_WINDOW must be > 0")
	}
	return mainConfig{
		EnvVars: vars,
		Cors:    NewCors(vars.AllowedOrigins),
	}, nil
}
