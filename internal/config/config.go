// Package config resolves process configuration from flags, the environment
// and an optional .env file. Flags win over the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

// Config holds everything both binaries may need.
type Config struct {
	BackendURL  string
	AnonKey     string
	DatabaseURL string // optional direct Postgres transport for tables and procedures
	HTTPTimeout time.Duration

	RedisAddr     string // empty keeps the query cache in memory
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	HTTPAddr      string
	HealthAddr    string
	AllowOrigins  []string
	ProbeInterval time.Duration

	SessionFile string
}

var (
	ErrMissingBackend = errors.New("backend url and anon key are required")
	ErrPrivilegedKey  = errors.New("refusing a privileged key; use the public anon key")
)

// LoadDotenv reads the given files (default .env) into the environment.
// Missing files are ignored and already set variables are kept.
func LoadDotenv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Bind registers the flags on fs with environment defaults and returns the
// Config they fill on fs.Parse.
func Bind(fs *flag.FlagSet) *Config {
	c := &Config{}
	fs.StringVar(&c.BackendURL, "backend", getEnv("LYT_BACKEND_URL", os.Getenv("SUPABASE_URL")), "backend base URL")
	fs.StringVar(&c.AnonKey, "anon-key", getEnv("LYT_ANON_KEY", os.Getenv("SUPABASE_ANON_KEY")), "public anon key")
	fs.StringVar(&c.DatabaseURL, "dsn", os.Getenv("LYT_DATABASE_URL"), "PostgreSQL DSN for direct table and procedure access (optional)")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", getDuration("LYT_HTTP_TIMEOUT", 30*time.Second), "backend HTTP client timeout")

	fs.StringVar(&c.RedisAddr, "redis", os.Getenv("LYT_REDIS_ADDR"), "redis address for the shared query cache (optional)")
	fs.StringVar(&c.RedisPassword, "redis-password", os.Getenv("LYT_REDIS_PASSWORD"), "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", getInt("LYT_REDIS_DB", 0), "redis database")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", getDuration("LYT_CACHE_TTL", 5*time.Minute), "query cache TTL")

	fs.StringVar(&c.HTTPAddr, "addr", getEnv("LYT_HTTP_ADDR", ":8080"), "public API listen address")
	fs.StringVar(&c.HealthAddr, "health-addr", getEnv("LYT_HEALTH_ADDR", ":8081"), "gRPC health listen address")
	fs.Func("cors", "comma separated allowed origins (default any; env LYT_CORS_ORIGINS)", func(v string) error {
		c.AllowOrigins = SplitList(v)
		return nil
	})
	c.AllowOrigins = SplitList(os.Getenv("LYT_CORS_ORIGINS"))
	fs.DurationVar(&c.ProbeInterval, "probe-interval", getDuration("LYT_PROBE_INTERVAL", 15*time.Second), "backend health probe interval")

	fs.StringVar(&c.SessionFile, "session", os.Getenv("LYT_SESSION_FILE"), "admin session file (default under the user config dir)")
	return c
}

// Validate checks the backend settings.
func (c *Config) Validate() error {
	if c.BackendURL == "" || c.AnonKey == "" {
		return ErrMissingBackend
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend url %q: must be an absolute http(s) URL", c.BackendURL)
	}
	return CheckAnonKey(c.AnonKey)
}

// CheckAnonKey rejects keys that would bypass row level security. Legacy keys
// are JWTs whose role claim is inspected without verifying the signature;
// newer keys carry an sb_publishable_ or sb_secret_ prefix.
func CheckAnonKey(key string) error {
	switch {
	case strings.HasPrefix(key, "sb_secret_"):
		return ErrPrivilegedKey
	case strings.HasPrefix(key, "sb_publishable_"):
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fmt.Errorf("anon key: %w", err)
	}
	if role, _ := claims["role"].(string); role == "service_role" {
		return ErrPrivilegedKey
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
