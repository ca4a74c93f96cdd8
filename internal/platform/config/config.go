package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	kstrings "securekyc/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr     string
	LogLevel slog.Level

	// DatabaseURL selects PostgreSQL stores; empty means in-memory.
	DatabaseURL string

	JWTSigningKey  string
	JWTIssuer      string
	AccessTokenTTL time.Duration

	// AdminAPIToken guards /admin; empty disables the admin surface.
	AdminAPIToken string

	// DistrictRiskFile is a YAML district table; empty uses the built-in one.
	DistrictRiskFile string

	// TxTimeout bounds a per-user resubmission transaction.
	TxTimeout time.Duration

	Redis     RedisConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
}

// RedisConfig configures the optional Redis connection used for per-user locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// NotifyConfig configures decision notification channels. A channel with no
// host or brokers is disabled.
type NotifyConfig struct {
	Timeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	KafkaBrokers []string
	KafkaTopic   string
}

// RateLimitConfig sets sliding-window request limits. Buckets live in Redis
// when it is configured, otherwise in process memory.
type RateLimitConfig struct {
	Disabled      bool
	Window        time.Duration
	AuthPerWindow int
	KYCPerWindow  int
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = devSigningKey
	}

	return Server{
		Addr:             envOr("KYC_ADDR", ":8080"),
		LogLevel:         parseLevel(os.Getenv("LOG_LEVEL")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSigningKey:    jwtSigningKey,
		JWTIssuer:        envOr("JWT_ISSUER", "securekyc"),
		AccessTokenTTL:   durationOr("ACCESS_TOKEN_TTL", 30*time.Minute),
		AdminAPIToken:    os.Getenv("ADMIN_API_TOKEN"),
		DistrictRiskFile: os.Getenv("DISTRICT_RISK_FILE"),
		TxTimeout:        durationOr("KYC_TX_TIMEOUT", 5*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: intOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
			LockTTL:      durationOr("REDIS_LOCK_TTL", 10*time.Second),
		},
		Notify: NotifyConfig{
			Timeout:      durationOr("NOTIFY_TIMEOUT", 5*time.Second),
			SMTPHost:     os.Getenv("SMTP_HOST"),
			SMTPPort:     intOr("SMTP_PORT", 587),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
			SMTPFrom:     envOr("SMTP_FROM", "no-reply@securekyc.local"),
			KafkaBrokers: kstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   envOr("KAFKA_TOPIC", "kyc.decision"),
		},
		RateLimit: RateLimitConfig{
			Disabled:      boolOr("RATE_LIMIT_DISABLED", false),
			Window:        durationOr("RATE_LIMIT_WINDOW", time.Minute),
			AuthPerWindow: intOr("RATE_LIMIT_AUTH", 10),
			KYCPerWindow:  intOr("RATE_LIMIT_KYC", 30),
		},
	}
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (s Server) UsesDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func boolOr(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
