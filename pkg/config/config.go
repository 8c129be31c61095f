// Package config loads the application configuration from environment
// variables. Every knob has a default so a bare `go run ./cmd` starts against
// local Postgres/Redis.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Reset     ResetConfig
	OAuth     OAuthConfig
	Email     EmailConfig
	Cleanup   CleanupConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return hostPort(r.Host, r.Port)
}

// JWTConfig configures the access-token signer. Keys are PEM-encoded RSA.
type JWTConfig struct {
	PrivateKeyPath  string
	PublicKeyPath   string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// RateLimitConfig holds per-flow fixed-window limits. Each flow throttles
// under its own key namespace so abuse of one cannot starve another.
type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
	OAuthLimit  int
	OAuthWindow time.Duration
	ResetLimit  int
	ResetWindow time.Duration
}

type ResetConfig struct {
	TokenTTL time.Duration
	// BaseURL is prepended to the token when building the emailed link.
	BaseURL string
}

type OAuthProviderConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

type OAuthConfig struct {
	StateTTL time.Duration
	Google   OAuthProviderConfig
	Apple    OAuthProviderConfig
}

type EmailConfig struct {
	// Provider is "ses" or "console".
	Provider    string
	FromAddress string
	AWSRegion   string
}

type CleanupConfig struct {
	Interval time.Duration
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 8080),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "keyward"),
			Password:        getEnv("DB_PASSWORD", "keyward"),
			Name:            getEnv("DB_NAME", "keyward"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			PrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", "private.pem"),
			PublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", "public.pem"),
			Issuer:          getEnv("JWT_ISSUER", "keyward"),
			Audience:        getEnv("JWT_AUDIENCE", "keyward-api"),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 2*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			LoginLimit:  getEnvInt("RATE_LOGIN_LIMIT", 5),
			LoginWindow: getEnvDuration("RATE_LOGIN_WINDOW", time.Minute),
			OAuthLimit:  getEnvInt("RATE_OAUTH_LIMIT", 10),
			OAuthWindow: getEnvDuration("RATE_OAUTH_WINDOW", time.Minute),
			ResetLimit:  getEnvInt("RATE_RESET_LIMIT", 3),
			ResetWindow: getEnvDuration("RATE_RESET_WINDOW", 5*time.Minute),
		},
		Reset: ResetConfig{
			TokenTTL: getEnvDuration("RESET_TOKEN_TTL", time.Hour),
			BaseURL:  getEnv("RESET_BASE_URL", "https://app.keyward.io/reset-password"),
		},
		OAuth: OAuthConfig{
			StateTTL: getEnvDuration("OAUTH_STATE_TTL", 5*time.Minute),
			Google: OAuthProviderConfig{
				Enabled:      getEnvBool("OAUTH_GOOGLE_ENABLED", false),
				ClientID:     getEnv("OAUTH_GOOGLE_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_GOOGLE_REDIRECT_URL", ""),
				AuthURL:      getEnv("OAUTH_GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/v2/auth"),
				TokenURL:     getEnv("OAUTH_GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
			},
			Apple: OAuthProviderConfig{
				Enabled:      getEnvBool("OAUTH_APPLE_ENABLED", false),
				ClientID:     getEnv("OAUTH_APPLE_CLIENT_ID", ""),
				ClientSecret: getEnv("OAUTH_APPLE_CLIENT_SECRET", ""),
				RedirectURL:  getEnv("OAUTH_APPLE_REDIRECT_URL", ""),
				AuthURL:      getEnv("OAUTH_APPLE_AUTH_URL", "https://appleid.apple.com/auth/authorize"),
				TokenURL:     getEnv("OAUTH_APPLE_TOKEN_URL", "https://appleid.apple.com/auth/token"),
			},
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "console"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@keyward.io"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
		},
		Cleanup: CleanupConfig{
			Interval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		},
	}
}
