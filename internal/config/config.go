// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads named API profiles for the apiclient CLI and builds
// the client components they describe. Library users configure pkg/client
// directly and never need this package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apierrors "github.com/tombee/apiclient/pkg/errors"
	"github.com/tombee/apiclient/pkg/storage"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrProfileNotFound is returned when a named profile does not exist.
	ErrProfileNotFound = errors.New("config: profile not found")
)

// Auth types.
const (
	AuthNone   = "none"
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthAPIKey = "api_key"
	AuthOAuth2 = "oauth2"
	AuthJWT    = "jwt"
	AuthSigV4  = "sigv4"
)

// Storage types.
const (
	StorageMemory        = "memory"
	StorageEncryptedFile = "encrypted_file"
	StorageRedis         = "redis"
	StorageKeychain      = "keychain"
	StorageSQLite        = "sqlite"
)

// Rate limit types.
const (
	RateLimitFixed       = "fixed"
	RateLimitAdaptive    = "adaptive"
	RateLimitMultiWindow = "multi_window"
)

// Config is the complete configuration file.
type Config struct {
	DefaultProfile string              `yaml:"default_profile,omitempty" json:"default_profile,omitempty"`
	Profiles       map[string]*Profile `yaml:"profiles,omitempty" json:"profiles,omitempty"`
	Log            LogConfig           `yaml:"log,omitempty" json:"log,omitempty"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// Profile describes one API: where it lives and how to talk to it.
type Profile struct {
	BaseURL        string            `yaml:"base_url" json:"base_url"`
	Timeout        time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	UserAgent      string            `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Auth           AuthConfig        `yaml:"auth,omitempty" json:"auth,omitempty"`
	Retry          *RetryConfig      `yaml:"retry,omitempty" json:"retry,omitempty"`
	RateLimit      *RateLimitConfig  `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Storage        StorageConfig     `yaml:"storage,omitempty" json:"storage,omitempty"`
	CircuitBreaker *BreakerConfig    `yaml:"circuit_breaker,omitempty" json:"circuit_breaker,omitempty"`
}

// AuthConfig selects and configures an authentication strategy. Only the
// fields of the selected Type are read.
type AuthConfig struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// bearer
	Token string `yaml:"token,omitempty" json:"-"`

	// basic
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`

	// api_key
	Key    string `yaml:"key,omitempty" json:"-"`
	Header string `yaml:"header,omitempty" json:"header,omitempty"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// oauth2
	ClientID     string        `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string        `yaml:"client_secret,omitempty" json:"-"`
	TokenURL     string        `yaml:"token_url,omitempty" json:"token_url,omitempty"`
	Scope        string        `yaml:"scope,omitempty" json:"scope,omitempty"`
	Tenant       string        `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	ExpiryMargin time.Duration `yaml:"expiry_margin,omitempty" json:"expiry_margin,omitempty"`

	// jwt
	Algorithm      string         `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	Secret         string         `yaml:"secret,omitempty" json:"-"`
	PrivateKeyFile string         `yaml:"private_key_file,omitempty" json:"private_key_file,omitempty"`
	KeyID          string         `yaml:"key_id,omitempty" json:"key_id,omitempty"`
	Issuer         string         `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Subject        string         `yaml:"subject,omitempty" json:"subject,omitempty"`
	Audience       []string       `yaml:"audience,omitempty" json:"audience,omitempty"`
	TTL            time.Duration  `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	Claims         map[string]any `yaml:"claims,omitempty" json:"claims,omitempty"`

	// sigv4
	Service         string `yaml:"service,omitempty" json:"service,omitempty"`
	Region          string `yaml:"region,omitempty" json:"region,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"-"`
	SessionToken    string `yaml:"session_token,omitempty" json:"-"`
	AWSProfile      string `yaml:"aws_profile,omitempty" json:"aws_profile,omitempty"`
}

// RetryConfig mirrors retry.Strategy.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay,omitempty" json:"base_delay,omitempty"`
	MaxDelay        time.Duration `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
	ExponentialBase float64       `yaml:"exponential_base,omitempty" json:"exponential_base,omitempty"`
	Jitter          bool          `yaml:"jitter,omitempty" json:"jitter,omitempty"`
}

// RateLimitConfig selects a limiter.
type RateLimitConfig struct {
	Type              string  `yaml:"type,omitempty" json:"type,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
	Burst             int     `yaml:"burst,omitempty" json:"burst,omitempty"`

	// multi_window
	PerSecond int `yaml:"per_second,omitempty" json:"per_second,omitempty"`
	PerMinute int `yaml:"per_minute,omitempty" json:"per_minute,omitempty"`
	PerHour   int `yaml:"per_hour,omitempty" json:"per_hour,omitempty"`
}

// StorageConfig selects where OAuth2 tokens are persisted.
type StorageConfig struct {
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// encrypted_file and sqlite
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// encrypted_file; empty selects the machine-derived password
	Password string `yaml:"password,omitempty" json:"-"`

	// redis
	Redis     *storage.RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
	KeyPrefix string               `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`

	// keychain
	Service string `yaml:"service,omitempty" json:"service,omitempty"`

	// sqlite
	Table string `yaml:"table,omitempty" json:"table,omitempty"`
}

// BreakerConfig mirrors client.BreakerConfig.
type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures,omitempty" json:"max_failures,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRequests int           `yaml:"max_requests,omitempty" json:"max_requests,omitempty"`
}

// Default returns an empty configuration.
func Default() *Config {
	return &Config{
		Profiles: map[string]*Profile{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration at configPath. Before parsing, the given
// .env files (or ./.env and <config dir>/.env when none are given) are
// loaded into the environment without overriding existing variables, and
// ${VAR} references in the file are expanded.
//
// A missing file at the default location yields an empty configuration;
// a missing file at an explicit path is an error.
func Load(configPath string, envFiles ...string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, &apierrors.ConfigError{Key: "config_file", Reason: "cannot locate config directory", Cause: err}
		}
		configPath = p
	}

	if err := loadEnvFiles(envFiles, filepath.Dir(configPath)); err != nil {
		return nil, &apierrors.ConfigError{Key: "env_file", Reason: "failed to load .env file", Cause: err}
	}

	cfg := Default()
	if err := cfg.loadFromFile(configPath); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, &apierrors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to load from %s", configPath),
			Cause:  err,
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &apierrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}
	return cfg, nil
}

// Parse parses configuration from YAML, expanding ${VAR} references from
// the environment. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Profile returns the named profile, or the default profile when name is
// empty. A configuration with exactly one profile needs no default.
func (c *Config) Profile(name string) (*Profile, string, error) {
	if name == "" {
		name = c.DefaultProfile
	}
	if name == "" && len(c.Profiles) == 1 {
		for only := range c.Profiles {
			name = only
		}
	}
	if name == "" {
		return nil, "", fmt.Errorf("%w: no profile selected and no default_profile set", ErrProfileNotFound)
	}
	p, ok := c.Profiles[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q (available: %s)", ErrProfileNotFound, name, strings.Join(c.ProfileNames(), ", "))
	}
	return p, name, nil
}

// ProfileNames returns the profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) applyDefaults() {
	if c.Profiles == nil {
		c.Profiles = map[string]*Profile{}
	}
	for _, p := range c.Profiles {
		if p == nil {
			continue
		}
		if p.Auth.Type == "" {
			p.Auth.Type = AuthNone
		}
		if p.Storage.Type == "" {
			p.Storage.Type = StorageMemory
		}
		if p.RateLimit != nil && p.RateLimit.Type == "" {
			p.RateLimit.Type = RateLimitFixed
		}
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func loadEnvFiles(files []string, configDir string) error {
	if len(files) > 0 {
		return godotenv.Load(files...)
	}
	for _, candidate := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := godotenv.Load(candidate); err != nil {
			return fmt.Errorf("%s: %w", candidate, err)
		}
	}
	return nil
}

// envRef matches ${NAME} and ${NAME:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${NAME} with the environment value of NAME and
// ${NAME:-default} with default when NAME is unset or empty. Bare $NAME is
// left alone so secrets containing '$' survive.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[3]
	})
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
