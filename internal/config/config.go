package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable pointing at an optional YAML file.
const EnvConfigPath = "INKPOST_CONFIG"

// Config is the root configuration. Values come from defaults, then the YAML
// file, then INKPOST_* environment variables.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects PostgreSQL. An empty DSN runs on in-memory stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds token secrets and lifetimes.
type AuthConfig struct {
	AccessSecret  string        `yaml:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	CookieName    string        `yaml:"cookie_name"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig contains cross-cutting HTTP middleware settings.
type HTTPConfig struct {
	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimit is requests per second per client IP; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// TrustProxy takes the client address from X-Forwarded-For. Leave off
	// unless a reverse proxy overwrites that header.
	TrustProxy bool `yaml:"trust_proxy"`
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by INKPOST_CONFIG, if any, plus env overrides.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// Default returns a Config with development defaults and no secrets.
func Default() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "inkpost",
			CookieName: "inkpost_refresh",
		},
		Logging: LoggingConfig{Level: "info"},
		HTTP: HTTPConfig{
			CORSOrigins: []string{"http://localhost:5173"},
			RateLimit:   20,
			RateBurst:   40,
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("INKPOST_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("INKPOST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("INKPOST_PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("INKPOST_ACCESS_SECRET"); v != "" {
		cfg.Auth.AccessSecret = v
	}
	if v := os.Getenv("INKPOST_REFRESH_SECRET"); v != "" {
		cfg.Auth.RefreshSecret = v
	}
	if v := os.Getenv("INKPOST_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INKPOST_ACCESS_TTL: %w", err)
		}
		cfg.Auth.AccessTTL = d
	}
	if v := os.Getenv("INKPOST_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INKPOST_REFRESH_TTL: %w", err)
		}
		cfg.Auth.RefreshTTL = d
	}
	if v := os.Getenv("INKPOST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INKPOST_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("INKPOST_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INKPOST_RATE_LIMIT: %w", err)
		}
		cfg.HTTP.RateLimit = f
	}
	if v := os.Getenv("INKPOST_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INKPOST_TRUST_PROXY: %w", err)
		}
		cfg.HTTP.TrustProxy = b
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Auth.AccessSecret == "" {
		errs = append(errs, "auth.access_secret is required (set INKPOST_ACCESS_SECRET)")
	}
	if c.Auth.RefreshSecret == "" {
		errs = append(errs, "auth.refresh_secret is required (set INKPOST_REFRESH_SECRET)")
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, "auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, "auth token TTLs must be positive")
	}
	if c.Auth.RefreshTTL > 0 && c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		errs = append(errs, "auth.refresh_ttl must exceed auth.access_ttl")
	}
	if c.Auth.CookieName == "" {
		errs = append(errs, "auth.cookie_name is required")
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, "http.rate_limit must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Production reports whether the service runs with production cookie and CORS policy.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
