package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// ConfigurationError names the variable that stops the process from starting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

type Config struct {
	DatabaseURL    string
	MigrateOnStart bool

	HTTPPort           int
	CORSAllowedOrigins []string
	TrustedProxies     []netip.Prefix
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string

	JWTSecret string
	JWTIssuer string

	RateLimitThreshold int
	RateLimitWindow    time.Duration

	EmailProvider      string
	EmailFrom          string
	EmailAPIKey        string
	EmailAPIURL        string
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPass           string
	EmailRatePerSecond float64
	EmailMaxAttempts   int
	EmailRetryBackoff  time.Duration
	EmailBatchSize     int
	EmailWorkerEvery   time.Duration
	EmailClaimTimeout  time.Duration
	FollowUpDelay      time.Duration

	AMQPURL string
}

// Load reads the environment, optionally seeded from a .env file, and
// validates it. The first problem found is returned as *ConfigurationError.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	l := &loader{getenv: getenv}
	cfg := &Config{
		DatabaseURL:    l.required("DATABASE_URL"),
		MigrateOnStart: l.bool("MIGRATE_ON_START", true),

		HTTPPort:           l.int("HTTP_PORT", 8080),
		CORSAllowedOrigins: l.list("CORS_ALLOWED_ORIGINS"),
		TrustedProxies:     l.prefixes("TRUSTED_PROXIES"),
		ShutdownTimeout:    l.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:  l.str("LOG_LEVEL", "info"),
		LogFormat: l.oneOf("LOG_FORMAT", "json", "json", "console"),

		JWTSecret: l.required("AUTH_JWT_SECRET"),
		JWTIssuer: l.str("AUTH_JWT_ISSUER", ""),

		RateLimitThreshold: l.int("RATE_LIMIT_THRESHOLD", 5),
		RateLimitWindow:    l.duration("RATE_LIMIT_WINDOW", time.Hour),

		EmailProvider:      l.oneOf("EMAIL_PROVIDER", ProviderResend, ProviderResend, ProviderSMTP),
		EmailFrom:          l.required("EMAIL_FROM"),
		EmailAPIURL:        l.str("EMAIL_API_URL", ""),
		EmailRatePerSecond: l.float("EMAIL_RATE_PER_SECOND", 2),
		EmailMaxAttempts:   l.int("EMAIL_MAX_ATTEMPTS", 3),
		EmailRetryBackoff:  l.duration("EMAIL_RETRY_BACKOFF", time.Minute),
		EmailBatchSize:     l.int("EMAIL_BATCH_SIZE", 10),
		EmailWorkerEvery:   l.duration("EMAIL_WORKER_INTERVAL", 0),
		EmailClaimTimeout:  l.duration("EMAIL_CLAIM_TIMEOUT", 15*time.Minute),
		FollowUpDelay:      l.duration("FOLLOWUP_DELAY", 24*time.Hour),

		AMQPURL: l.str("AMQP_URL", ""),
	}

	switch cfg.EmailProvider {
	case ProviderResend:
		cfg.EmailAPIKey = l.required("EMAIL_API_KEY")
	case ProviderSMTP:
		cfg.SMTPHost = l.required("SMTP_HOST")
		cfg.SMTPPort = l.int("SMTP_PORT", 587)
		cfg.SMTPUser = l.str("SMTP_USER", "")
		cfg.SMTPPass = l.str("SMTP_PASS", "")
	}

	l.check("HTTP_PORT", cfg.HTTPPort > 0 && cfg.HTTPPort < 65536, "must be a valid port")
	l.check("RATE_LIMIT_THRESHOLD", cfg.RateLimitThreshold > 0, "must be positive")
	l.check("RATE_LIMIT_WINDOW", cfg.RateLimitWindow > 0, "must be positive")
	l.check("EMAIL_MAX_ATTEMPTS", cfg.EmailMaxAttempts > 0, "must be positive")
	l.check("EMAIL_BATCH_SIZE", cfg.EmailBatchSize > 0 && cfg.EmailBatchSize <= 100, "must be between 1 and 100")
	l.check("EMAIL_RETRY_BACKOFF", cfg.EmailRetryBackoff >= 0, "must not be negative")
	l.check("EMAIL_RATE_PER_SECOND", cfg.EmailRatePerSecond >= 0, "must not be negative")

	if l.err != nil {
		return nil, l.err
	}
	return cfg, nil
}

type loader struct {
	getenv func(string) string
	err    *ConfigurationError
}

func (l *loader) fail(key, reason string) {
	if l.err == nil {
		l.err = &ConfigurationError{Key: key, Reason: reason}
	}
}

func (l *loader) check(key string, ok bool, reason string) {
	if !ok {
		l.fail(key, reason)
	}
}

func (l *loader) str(key, def string) string {
	if v := strings.TrimSpace(l.getenv(key)); v != "" {
		return v
	}
	return def
}

func (l *loader) required(key string) string {
	v := strings.TrimSpace(l.getenv(key))
	if v == "" {
		l.fail(key, "is required")
	}
	return v
}

func (l *loader) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(l.str(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	l.fail(key, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")))
	return def
}

func (l *loader) int(key string, def int) int {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(key, "must be an integer")
		return def
	}
	return v
}

func (l *loader) float(key string, def float64) float64 {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		l.fail(key, "must be a number")
		return def
	}
	return v
}

func (l *loader) bool(key string, def bool) bool {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		l.fail(key, "must be true or false")
		return def
	}
	return v
}

// prefixes reads a list of CIDRs or bare addresses.
func (l *loader) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, raw := range l.list(key) {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			l.fail(key, fmt.Sprintf("%q is not an address or CIDR", raw))
			return nil
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		l.fail(key, "must be a duration such as 30s or 1h")
		return def
	}
	return v
}

func (l *loader) list(key string) []string {
	raw := l.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
