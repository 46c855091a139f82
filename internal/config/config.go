package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	PublicBaseURL      string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	// Identity provider (Supabase-style shared-secret JWTs).
	SupabaseJWTSecret string
	SupabaseIssuer    string
	SupabaseAudience  string
	AuthClockSkew     time.Duration

	// Tenant resolution.
	TenantHeader     string
	TenantRootDomain string
	DefaultTenant    string

	// Payment provider.
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	CheckoutTTL         time.Duration

	// Transactional email.
	ResendAPIKey       string
	ResendBaseURL      string
	NotifyEmailFrom    string
	NotifyEmailEnabled bool

	// Operational knobs.
	ProposalCacheTTL    time.Duration
	IdempotencyTTL      time.Duration
	GenerateLockTTL     time.Duration
	RateLimitWindow     time.Duration
	RateLimitMax        int
	MigrationsDir       string
	DBMaxConns          int
	EstimateMaxItems    int
	EstimatePageLimit   int
	ProposalPageLimit   int
	OutboundHTTPTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SupabaseJWTSecret: k.String("SUPABASE_JWT_SECRET"),
		SupabaseIssuer:    strings.TrimSpace(k.String("SUPABASE_ISSUER")),
		SupabaseAudience:  valueOrDefault(strings.TrimSpace(k.String("SUPABASE_AUDIENCE")), "authenticated"),
		AuthClockSkew:     parseDuration(k.String("AUTH_CLOCK_SKEW"), "30s"),

		TenantHeader:     valueOrDefault(strings.TrimSpace(k.String("TENANT_HEADER")), "X-Tenant-ID"),
		TenantRootDomain: strings.TrimSpace(k.String("TENANT_ROOT_DOMAIN")),
		DefaultTenant:    strings.TrimSpace(k.String("TENANT_DEFAULT")),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       strings.TrimSpace(k.String("STRIPE_BASE_URL")),
		CheckoutTTL:         parseDuration(k.String("CHECKOUT_TTL"), "24h"),

		ResendAPIKey:       k.String("RESEND_API_KEY"),
		ResendBaseURL:      valueOrDefault(strings.TrimSpace(k.String("RESEND_BASE_URL")), "https://api.resend.com"),
		NotifyEmailFrom:    valueOrDefault(strings.TrimSpace(k.String("NOTIFY_EMAIL_FROM")), "proposals@localhost"),
		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),

		ProposalCacheTTL:    parseDuration(k.String("PROPOSAL_CACHE_TTL"), "5m"),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		GenerateLockTTL:     parseDuration(k.String("GENERATE_LOCK_TTL"), "15s"),
		RateLimitWindow:     parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:        intOrDefault(k.Int("RATE_LIMIT_MAX"), 120),
		MigrationsDir:       valueOrDefault(strings.TrimSpace(k.String("MIGRATIONS_DIR")), "migrations"),
		DBMaxConns:          k.Int("DB_MAX_CONNS"),
		EstimateMaxItems:    intOrDefault(k.Int("ESTIMATE_MAX_ITEMS"), 200),
		EstimatePageLimit:   intOrDefault(k.Int("ESTIMATE_PAGE_LIMIT"), 50),
		ProposalPageLimit:   intOrDefault(k.Int("PROPOSAL_PAGE_LIMIT"), 50),
		OutboundHTTPTimeout: parseDuration(k.String("OUTBOUND_HTTP_TIMEOUT"), "10s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.SupabaseJWTSecret == "" {
		return nil, errors.New("SUPABASE_JWT_SECRET is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
