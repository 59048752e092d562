package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	LogLevel    string

	// HTTP
	Addr            string
	TrustProxy      bool
	CORSOrigins     []string
	GlobalRateLimit int

	// DB
	DatabaseURL string
	DBMaxConns  int32
	DBLogSQL    bool
	AutoMigrate bool

	// Tokens
	TokenTTL       time.Duration
	AllowAnonymous bool

	// Rate limiting: "db" or "redis"
	RateLimitBackend string
	RedisAddr        string
	RedisDB          int

	// Remote error collector
	LogURL        string
	LogUser       string
	LogPassword   string
	LogAttempts   int
	LogRetryDelay time.Duration

	EthrChainID int64
}

func Load() Config {
	return Config{
		Environment: getenv("ENVIRONMENT", "dev"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		Addr:            getenv("ADDR", ":3001"),
		TrustProxy:      getbool("TRUST_PROXY", false),
		CORSOrigins:     getlist("CORS_ORIGINS"),
		GlobalRateLimit: getint("GLOBAL_RATE_LIMIT", 0),

		DatabaseURL: must("DATABASE_URL"),
		DBMaxConns:  int32(getint("DB_MAX_CONNS", 10)),
		DBLogSQL:    getbool("DB_LOG_SQL", false),
		AutoMigrate: getbool("AUTO_MIGRATE", false),

		TokenTTL:       getdur("TOKEN_TTL", 24*time.Hour),
		AllowAnonymous: getbool("ALLOW_ANONYMOUS", false),

		RateLimitBackend: getenv("RATE_LIMIT_BACKEND", "db"),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getint("REDIS_DB", 0),

		LogURL:        os.Getenv("LOG_URL"),
		LogUser:       os.Getenv("LOG_USER"),
		LogPassword:   os.Getenv("LOG_PASSWORD"),
		LogAttempts:   getint("LOG_ATTEMPTS", 3),
		LogRetryDelay: getdur("LOG_RETRY_DELAY", 30*time.Second),

		EthrChainID: int64(getint("ETHR_CHAIN_ID", 1)),
	}
}

// Validate rejects combinations Load cannot fix with a default.
func (c Config) Validate() error {
	var errs []error
	switch c.RateLimitBackend {
	case "db":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q: want db or redis", c.RateLimitBackend))
	}
	if c.LogAttempts < 1 {
		errs = append(errs, fmt.Errorf("LOG_ATTEMPTS %d: want at least 1", c.LogAttempts))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS %d: want at least 1", c.DBMaxConns))
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		slog.Warn("invalid bool, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid int, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
	}
	return def
}

func getlist(k string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("missing required env", "key", k)
		os.Exit(1)
	}
	return v
}
