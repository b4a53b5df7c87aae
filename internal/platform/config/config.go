package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process-level settings read from environment variables.
// The access policy (roles, users, providers) lives in a YAML file, see
// Policy.
type Config struct {
	Addr        string
	ManagerURL  string // Base URL of the run-queue manager backend
	LogLevel    string
	PolicyFile  string // Path to the YAML policy file; empty uses defaults
	TokenSecret string // Token signing secret; empty generates a per-process one
	TokenTTL    time.Duration
	// SingleUserAPIKey overrides the policy file's single_user_api_key.
	SingleUserAPIKey string
	RateLimit        RateLimitConfig
}

// RateLimitConfig holds token bucket parameters for per-IP rate limiting.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from environment variables, falling back to defaults.
func Load() Config {
	return Config{
		Addr:             envOr("QGATE_ADDR", ":8080"),
		ManagerURL:       envOr("QGATE_MANAGER_URL", "http://localhost:8082"),
		LogLevel:         envOr("QGATE_LOG_LEVEL", "info"),
		PolicyFile:       envOr("QGATE_CONFIG", ""),
		TokenSecret:      envOr("QGATE_TOKEN_SECRET", ""),
		TokenTTL:         time.Duration(envInt("QGATE_TOKEN_TTL_SECONDS", 900)) * time.Second,
		SingleUserAPIKey: envOr("QGATE_SINGLE_USER_API_KEY", ""),
		RateLimit: RateLimitConfig{
			Rate:  envFloat("QGATE_RATE_LIMIT_RATE", 100),
			Burst: envInt("QGATE_RATE_LIMIT_BURST", 20),
		},
	}
}

// Policy is the startup configuration surface for the authorization
// engine: anonymous access, the single-user key, identity providers and
// the access-policy tables.
type Policy struct {
	Authentication Authentication `yaml:"authentication"`
	APIAccess      APIAccess      `yaml:"api_access"`
}

// Authentication configures how credentials are accepted.
type Authentication struct {
	AllowAnonymousAccess bool       `yaml:"allow_anonymous_access"`
	SingleUserAPIKey     string     `yaml:"single_user_api_key"`
	Providers            []Provider `yaml:"providers"`
}

// Provider describes one identity provider.
type Provider struct {
	Provider      string `yaml:"provider"`
	Authenticator string `yaml:"authenticator"` // "dictionary" or "remote"

	// Dictionary authenticator arguments.
	UsersToPasswords map[string]string `yaml:"users_to_passwords"`

	// Remote authenticator arguments.
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// APIAccess holds the per-user role table and per-role scope overrides.
type APIAccess struct {
	Users        map[string]UserAccess   `yaml:"users"`
	Roles        map[string]RoleOverride `yaml:"roles"`
	DefaultRoles []string                `yaml:"default_roles"`
}

// UserAccess assigns roles to one user, in order.
type UserAccess struct {
	Roles []string `yaml:"roles"`
}

// RoleOverride adjusts one role's scopes at startup: default ∪ add −
// remove, replaced wholesale by set when present.
type RoleOverride struct {
	ScopesAdd    []string `yaml:"scopes_add"`
	ScopesRemove []string `yaml:"scopes_remove"`
	ScopesSet    []string `yaml:"scopes_set"`
}

// LoadPolicy parses the YAML policy file. An empty path returns the zero
// policy: no providers, no single-user key, anonymous access disabled.
func LoadPolicy(path string) (Policy, error) {
	var p Policy
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	return p, nil
}

// ParsePolicy parses a YAML policy document from memory (used by tests).
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parsing policy: %w", err)
	}
	return p, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
			return fallback
		}
		return f
	}
	return fallback
}
