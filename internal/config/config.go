package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int    `env:"DB_MAX_CONNS" envDefault:"5"`

	// Proveedor hosted: API administrativa (bearer) y API de frontend.
	HostedSecretKey    string `env:"HOSTED_SECRET_KEY,required"`
	HostedAPIURL       string `env:"HOSTED_API_URL" envDefault:"https://api.clerk.com/v1"`
	HostedFrontendURL  string `env:"HOSTED_FRONTEND_URL"`
	HostedJWTPublicKey string `env:"HOSTED_JWT_PUBLIC_KEY"`
	HostedJWTSecret    string `env:"HOSTED_JWT_SECRET"`
	HostedSessionName  string `env:"HOSTED_SESSION_COOKIE" envDefault:"__session"`
	SignInTokenTTL     int    `env:"SIGN_IN_TOKEN_TTL_SECONDS" envDefault:"300"`

	// Sesion legada (cookie firmada).
	LegacySessionKey  string `env:"LEGACY_SESSION_KEY,required"`
	LegacySessionName string `env:"LEGACY_SESSION_NAME" envDefault:"legacy-session"`
	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"true"`

	RedisAddr        string `env:"REDIS_ADDR"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	RedisDB          int    `env:"REDIS_DB" envDefault:"0"`
	ProvisionLockTTL int    `env:"PROVISION_LOCK_TTL_SECONDS" envDefault:"15"`

	// Limite de intentos por email en /legacy/sign-in y /api/provision.
	AttemptWindow int `env:"ATTEMPT_WINDOW_SECONDS" envDefault:"600"`
	AttemptMax    int `env:"ATTEMPT_MAX" envDefault:"10"`

	// Endpoint de aprovisionamiento usado por el cliente (cli_signin).
	ProvisionURL string `env:"PROVISION_URL" envDefault:"http://localhost:8080/api/provision"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClientConfig es la configuración minima de los clientes de linea de comandos.
type ClientConfig struct {
	HostedFrontendURL string `env:"HOSTED_FRONTEND_URL,required"`
	ProvisionURL      string `env:"PROVISION_URL" envDefault:"http://localhost:8080/api/provision"`
}

func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SignInTokenLifetime() time.Duration {
	if c.SignInTokenTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SignInTokenTTL) * time.Second
}

func (c *Config) ProvisionLockLifetime() time.Duration {
	if c.ProvisionLockTTL <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ProvisionLockTTL) * time.Second
}

func (c *Config) AttemptWindowDuration() time.Duration {
	if c.AttemptWindow <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.AttemptWindow) * time.Second
}
