package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds everything the edge services read at start-up.
// Nothing in it is mutated after Load returns.
type Config struct {
	ProxyAddr          string
	AdminAddr          string
	BackendURL         string
	ProxyPrefix        string
	LocalOrigin        string
	CORSAllowedOrigins []string
	ProxyTimeout       time.Duration

	AdminSecret       string
	SupabaseJWTSecret string

	DBDriver      string
	DBPath        string
	DatabaseURL   string
	DBAutoMigrate bool

	RxNormResolve bool
	RxNormBaseURL string

	MCPEnabled bool

	LogLevel  string
	LogFormat string

	Version string
}

// Load reads an optional .env file (missing files are ignored) and then the
// process environment. Values already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv builds a Config from environment variables only.
func LoadFromEnv() (*Config, error) {
	timeout, err := durationEnv("PROXY_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProxyAddr:          envOr("PROXY_ADDR", ":8080"),
		AdminAddr:          envOr("ADMIN_ADDR", ":8090"),
		BackendURL:         strings.TrimRight(os.Getenv("BACKEND_URL"), "/"),
		ProxyPrefix:        strings.TrimRight(envOr("PROXY_PREFIX", "/api"), "/"),
		LocalOrigin:        strings.TrimRight(os.Getenv("LOCAL_ORIGIN"), "/"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		ProxyTimeout:       timeout,
		AdminSecret:        os.Getenv("ADMIN_SECRET"),
		SupabaseJWTSecret:  os.Getenv("SUPABASE_JWT_SECRET"),
		DBDriver:           strings.ToLower(envOr("DB_DRIVER", DriverSQLite)),
		DBPath:             envOr("DB_PATH", "oncosaferx.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBAutoMigrate:      boolEnv("DB_AUTO_MIGRATE"),
		RxNormResolve:      boolEnv("RXNORM_RESOLVE"),
		RxNormBaseURL:      envOr("RXNORM_BASE_URL", "https://rxnav.nlm.nih.gov/REST"),
		MCPEnabled:         boolEnv("MCP_ENABLED"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		LogFormat:          envOr("LOG_FORMAT", "json"),
		Version:            envOr("APP_VERSION", "dev"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	if c.BackendURL != "" {
		u, err := url.Parse(c.BackendURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
		}
	}
	if !strings.HasPrefix(c.ProxyPrefix, "/") {
		return fmt.Errorf("PROXY_PREFIX must be a non-root path starting with '/', got %q", c.ProxyPrefix)
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// Warnings lists configuration weaknesses that are allowed but worth surfacing
// on the health endpoint.
func (c *Config) Warnings() []string {
	var w []string
	if c.AdminSecret == "" {
		w = append(w, "ADMIN_SECRET is not set; admin sync rejects every request")
	}
	if c.BackendURL == "" {
		w = append(w, "BACKEND_URL is not set; proxy requests will fail with 502")
	}
	if len(c.CORSAllowedOrigins) == 0 {
		w = append(w, "CORS_ALLOWED_ORIGINS is empty; proxy echoes any Origin with credentials")
	}
	return w
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func boolEnv(key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return v
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, strings.TrimRight(f, "/"))
		}
	}
	return out
}
