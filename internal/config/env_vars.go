package config

import (
	"strings"
	"time"
)

// EnvVars is populated from the environment by env.Parse.
type EnvVars struct {
	Port            string `env:"PORT" envDefault:"8080"`
	AppName         string `env:"APP_NAME" envDefault:"Domio Hub"`
	Env             string `env:"ENV" envDefault:"DEV"`
	DatabaseURL     string `env:"DATABASE_URL"`
	RedisURL        string `env:"REDIS_URL"`
	TranslateURL    string `env:"TRANSLATE_URL" envDefault:"https://api.mymemory.translated.net/get"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"pl"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// PublicHost is the hostname this process serves; it decides the session store once at start.
	PublicHost   string `env:"PUBLIC_HOST" envDefault:"localhost"`
	ParentDomain string `env:"PARENT_DOMAIN" envDefault:"domio.com.pl"`
	FleetAppURL  string `env:"FLEET_APP_URL" envDefault:"https://fleet.domio.com.pl"`

	AuthServiceURL        string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:9999"`
	AuthServiceAnonKey    string `env:"AUTH_SERVICE_ANON_KEY"`
	AuthServiceServiceKey string `env:"AUTH_SERVICE_SERVICE_KEY"`
	AuthJWKSURL           string `env:"AUTH_JWKS_URL"`
	AuthIssuer            string `env:"AUTH_ISSUER"`
	ProvisioningKey       string `env:"PROVISIONING_KEY"`

	SessionStorageKey   string        `env:"SESSION_STORAGE_KEY" envDefault:"domio-auth-token"`
	SessionCookieMaxAge time.Duration `env:"SESSION_COOKIE_MAX_AGE" envDefault:"9600h"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"https://cleaning.domio.com.pl"`

	PostLoginRedirectDelay  time.Duration `env:"POST_LOGIN_REDIRECT_DELAY" envDefault:"0s"`
	SigninAttemptsPerWindow int           `env:"SIGNIN_ATTEMPTS_PER_WINDOW" envDefault:"10"`
	SigninWindow            time.Duration `env:"SIGNIN_WINDOW" envDefault:"1m"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return port
}

func (e EnvVars) GetAppName() string { return e.AppName }

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetDatabaseURL() string     { return e.DatabaseURL }
func (e EnvVars) GetRedisURL() string        { return e.RedisURL }
func (e EnvVars) GetTranslateURL() string    { return e.TranslateURL }
func (e EnvVars) GetDefaultLanguage() string { return e.DefaultLanguage }
func (e EnvVars) GetOTLPEndpoint() string    { return e.OTLPEndpoint }

func (e EnvVars) GetPublicHost() string   { return e.PublicHost }
func (e EnvVars) GetParentDomain() string { return e.ParentDomain }
func (e EnvVars) GetFleetAppURL() string  { return e.FleetAppURL }

// GetAuthServiceURL returns the Auth Service base URL without a trailing slash.
func (e EnvVars) GetAuthServiceURL() string     { return strings.TrimRight(e.AuthServiceURL, "/") }
func (e EnvVars) GetAuthServiceAnonKey() string { return e.AuthServiceAnonKey }
func (e EnvVars) GetAuthServiceServiceKey() string {
	return e.AuthServiceServiceKey
}
func (e EnvVars) GetAuthJWKSURL() string     { return e.AuthJWKSURL }
func (e EnvVars) GetAuthIssuer() string      { return e.AuthIssuer }
func (e EnvVars) GetProvisioningKey() string { return e.ProvisioningKey }

func (e EnvVars) GetSessionStorageKey() string { return e.SessionStorageKey }

func (e EnvVars) GetSessionCookieMaxAge() time.Duration { return e.SessionCookieMaxAge }

func (e EnvVars) GetPostLoginRedirectDelay() time.Duration { return e.PostLoginRedirectDelay }
func (e EnvVars) GetSigninAttemptsPerWindow() int          { return e.SigninAttemptsPerWindow }
func (e EnvVars) GetSigninWindow() time.Duration           { return e.SigninWindow }
