package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig encapsulates all runtime configuration knobs.
type AppConfig struct {
	App        AppSettings
	HTTP       HTTPSettings
	Auth       AuthSettings
	Log        LogSettings
	Database   DatabaseSettings
	Audit      AuditSettings
	Hacienda   HaciendaSettings
	Submission SubmissionSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

// HTTPSettings configure the callback listener.
type HTTPSettings struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// AuthSettings configure JWT validation for the listener's query endpoints.
// Ministry callbacks themselves arrive unauthenticated and stay on the
// bypass list.
type AuthSettings struct {
	Enabled     bool
	IssuerURI   string
	JWKSetURI   string
	ClockSkew   time.Duration
	BypassPaths []string
}

type LogSettings struct {
	Level string
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuditSettings struct {
	Enabled         bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// HaciendaSettings configure the outbound side: the ministry's reception API
// and its Keycloak identity provider. Endpoint fields default from the
// environment preset and may be overridden individually.
type HaciendaSettings struct {
	Environment string
	APIBaseURL  string
	TokenURL    string
	ClientID    string
	Username    string
	Password    string
	CallbackURL string
	APITimeout  time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	MaxRetries        int
	RetryInitialDelay time.Duration
	RetryMultiplier   float64

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// SubmissionSettings configure the batch submission pipeline.
type SubmissionSettings struct {
	WorkerPoolSize          int
	QueueSize               int
	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
	ProfilesPath            string
}

// EnvironmentPreset carries the endpoints the ministry publishes per
// environment.
type EnvironmentPreset struct {
	Name       string
	APIBaseURL string
	TokenURL   string
	ClientID   string
}

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

var presets = map[string]EnvironmentPreset{
	EnvSandbox: {
		Name:       EnvSandbox,
		APIBaseURL: "https://api.comprobanteselectronicos.go.cr/recepcion-sandbox/v1",
		TokenURL:   "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut-stag/protocol/openid-connect/token",
		ClientID:   "api-stag",
	},
	EnvProduction: {
		Name:       EnvProduction,
		APIBaseURL: "https://api.comprobanteselectronicos.go.cr/recepcion/v1",
		TokenURL:   "https://idp.comprobanteselectronicos.go.cr/auth/realms/rut/protocol/openid-connect/token",
		ClientID:   "api-prod",
	},
}

// Preset returns the builtin endpoints for a ministry environment.
func Preset(name string) (EnvironmentPreset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Load resolves the application configuration from environment variables.
// It first attempts to load variables from a .env file if it exists.
// Environment variables set in the system take precedence over .env file values.
func Load() (AppConfig, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	// This allows the application to work both with .env files (local dev)
	// and environment variables (Docker, production)
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "hacienda_client"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		HTTP: HTTPSettings{
			Port:            getEnvAsInt("APP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthSettings{
			Enabled:     getEnvAsBool("AUTH_ENABLED", false),
			IssuerURI:   strings.TrimSpace(os.Getenv("JWT_ISSUER_URI")),
			JWKSetURI:   strings.TrimSpace(os.Getenv("JWT_JWK_SET_URI")),
			ClockSkew:   getEnvAsDuration("AUTH_CLOCK_SKEW", 2*time.Minute),
			BypassPaths: getEnvAsCSV("AUTH_BYPASS_PATHS", []string{"/health", "/callbacks/hacienda"}),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseSettings{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "hacienda_client"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Audit: AuditSettings{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			LogRequestBody:  getEnvAsBool("AUDIT_LOG_REQUEST_BODY", true),
			LogResponseBody: getEnvAsBool("AUDIT_LOG_RESPONSE_BODY", true),
			MaxBodySize:     getEnvAsInt("AUDIT_MAX_BODY_SIZE", 102400),
		},
		Hacienda: HaciendaSettings{
			Environment: strings.ToLower(getEnv("HACIENDA_ENV", EnvSandbox)),
			APIBaseURL:  strings.TrimSpace(os.Getenv("HACIENDA_API_BASE_URL")),
			TokenURL:    strings.TrimSpace(os.Getenv("HACIENDA_TOKEN_URL")),
			ClientID:    strings.TrimSpace(os.Getenv("HACIENDA_CLIENT_ID")),
			Username:    strings.TrimSpace(os.Getenv("HACIENDA_USERNAME")),
			Password:    os.Getenv("HACIENDA_PASSWORD"),
			CallbackURL: strings.TrimSpace(os.Getenv("HACIENDA_CALLBACK_URL")),
			APITimeout:  getEnvAsDuration("HACIENDA_API_TIMEOUT", 30*time.Second),

			RateLimitRequests: getEnvAsInt("HACIENDA_RATE_LIMIT_REQUESTS", 10),
			RateLimitWindow:   getEnvAsDuration("HACIENDA_RATE_LIMIT_WINDOW", time.Second),

			MaxRetries:        getEnvAsInt("HACIENDA_MAX_RETRIES", 2),
			RetryInitialDelay: getEnvAsDuration("HACIENDA_RETRY_INITIAL_DELAY", time.Second),
			RetryMultiplier:   getEnvAsFloat("HACIENDA_RETRY_MULTIPLIER", 2.0),

			PollInterval: getEnvAsDuration("HACIENDA_POLL_INTERVAL", 5*time.Second),
			PollTimeout:  getEnvAsDuration("HACIENDA_POLL_TIMEOUT", 80*time.Second),
		},
		Submission: SubmissionSettings{
			WorkerPoolSize:          getEnvAsInt("SUBMISSION_WORKER_POOL_SIZE", 5),
			QueueSize:               getEnvAsInt("SUBMISSION_QUEUE_SIZE", 100),
			BreakerFailureThreshold: getEnvAsInt("SUBMISSION_BREAKER_FAILURE_THRESHOLD", 5),
			BreakerResetTimeout:     getEnvAsDuration("SUBMISSION_BREAKER_RESET_TIMEOUT", 30*time.Second),
			ProfilesPath:            getEnv("PROFILES_PATH", "profiles.json"),
		},
	}

	// Endpoints not overridden explicitly come from the environment preset.
	preset, known := Preset(cfg.Hacienda.Environment)
	if cfg.Hacienda.APIBaseURL == "" {
		if !known {
			return cfg, fmt.Errorf("invalid config: unknown HACIENDA_ENV %q and no HACIENDA_API_BASE_URL override", cfg.Hacienda.Environment)
		}
		cfg.Hacienda.APIBaseURL = preset.APIBaseURL
	}
	if cfg.Hacienda.TokenURL == "" {
		if !known {
			return cfg, fmt.Errorf("invalid config: unknown HACIENDA_ENV %q and no HACIENDA_TOKEN_URL override", cfg.Hacienda.Environment)
		}
		cfg.Hacienda.TokenURL = preset.TokenURL
	}
	if cfg.Hacienda.ClientID == "" {
		if !known {
			return cfg, fmt.Errorf("invalid config: unknown HACIENDA_ENV %q and no HACIENDA_CLIENT_ID override", cfg.Hacienda.Environment)
		}
		cfg.Hacienda.ClientID = preset.ClientID
	}

	if cfg.Hacienda.RateLimitRequests <= 0 {
		return cfg, errors.New("invalid config: HACIENDA_RATE_LIMIT_REQUESTS must be greater than 0")
	}
	if cfg.Hacienda.RetryMultiplier < 1 {
		return cfg, errors.New("invalid config: HACIENDA_RETRY_MULTIPLIER must be at least 1")
	}
	if cfg.Submission.WorkerPoolSize <= 0 {
		return cfg, errors.New("invalid config: SUBMISSION_WORKER_POOL_SIZE must be greater than 0")
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.IssuerURI == "" {
			return cfg, errors.New("invalid config: JWT_ISSUER_URI is required when AUTH_ENABLED=true")
		}
		if cfg.Auth.JWKSetURI == "" {
			return cfg, errors.New("invalid config: JWT_JWK_SET_URI is required when AUTH_ENABLED=true")
		}
	}

	return cfg, nil
}

// Address returns the HTTP listen address in host:port form.
func (h HTTPSettings) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

// HasCredentials reports whether a username/password pair was configured.
func (h HaciendaSettings) HasCredentials() bool {
	return h.Username != "" && h.Password != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
