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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const sampleConfig = `
default_profile: github
log:
  level: debug
  format: json
profiles:
  github:
    base_url: https://api.github.com
    timeout: 15s
    headers:
      Accept: application/vnd.github+json
    auth:
      type: oauth2
      client_id: my-client
      client_secret: ${TEST_GH_SECRET}
      token_url: https://github.com/login/oauth/access_token
      scope: repo read:org
      expiry_margin: 2m
    retry:
      max_retries: 3
      base_delay: 500ms
      max_delay: 30s
      exponential_base: 2
      jitter: true
    rate_limit:
      type: adaptive
      requests_per_second: 5
    storage:
      type: encrypted_file
      path: ${TEST_TOKEN_DIR:-/tmp}/tokens.enc
      password: ${TEST_TOKEN_PASSWORD}
    circuit_breaker:
      max_failures: 4
      timeout: 1m
  local:
    base_url: http://localhost:8080
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GH_SECRET", "s3cret")
	t.Setenv("TEST_TOKEN_PASSWORD", "pw")
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DefaultProfile != "github" {
		t.Errorf("DefaultProfile = %q, want github", cfg.DefaultProfile)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}

	p, name, err := cfg.Profile("")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if name != "github" {
		t.Errorf("profile name = %q, want github", name)
	}
	if p.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", p.Timeout)
	}
	if p.Headers["Accept"] != "application/vnd.github+json" {
		t.Errorf("Accept header = %q", p.Headers["Accept"])
	}
	if p.Auth.ClientSecret != "s3cret" {
		t.Errorf("ClientSecret = %q, want expanded value", p.Auth.ClientSecret)
	}
	if p.Auth.ExpiryMargin != 2*time.Minute {
		t.Errorf("ExpiryMargin = %v, want 2m", p.Auth.ExpiryMargin)
	}
	if p.Retry == nil || p.Retry.MaxRetries != 3 || p.Retry.BaseDelay != 500*time.Millisecond || !p.Retry.Jitter {
		t.Errorf("Retry = %+v", p.Retry)
	}
	if p.RateLimit == nil || p.RateLimit.Type != RateLimitAdaptive || p.RateLimit.RequestsPerSecond != 5 {
		t.Errorf("RateLimit = %+v", p.RateLimit)
	}
	if p.Storage.Path != "/tmp/tokens.enc" {
		t.Errorf("Storage.Path = %q, want default applied", p.Storage.Path)
	}
	if p.Storage.Password != "pw" {
		t.Errorf("Storage.Password = %q", p.Storage.Password)
	}
	if p.CircuitBreaker == nil || p.CircuitBreaker.MaxFailures != 4 || p.CircuitBreaker.Timeout != time.Minute {
		t.Errorf("CircuitBreaker = %+v", p.CircuitBreaker)
	}

	local, _, err := cfg.Profile("local")
	if err != nil {
		t.Fatalf("Profile(local) error = %v", err)
	}
	if local.Auth.Type != AuthNone || local.Storage.Type != StorageMemory {
		t.Errorf("defaults not applied: auth=%q storage=%q", local.Auth.Type, local.Storage.Type)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("TEST_ENVFILE_TOKEN=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TEST_ENVFILE_TOKEN") })

	path := writeConfig(t, `
profiles:
  api:
    base_url: https://api.example.com
    auth:
      type: bearer
      token: ${TEST_ENVFILE_TOKEN}
`)
	cfg, err := Load(path, envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, _, err := cfg.Profile("")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Auth.Token != "from-dotenv" {
		t.Errorf("Token = %q, want from-dotenv", p.Auth.Token)
	}
}

func TestLoad_EnvFileDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("TEST_ENV_PRECEDENCE=file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_ENV_PRECEDENCE", "process")

	path := writeConfig(t, `
profiles:
  api:
    base_url: https://api.example.com
    user_agent: ${TEST_ENV_PRECEDENCE}
`)
	cfg, err := Load(path, envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Profiles["api"].UserAgent; got != "process" {
		t.Errorf("UserAgent = %q, want process", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		errText string
	}{
		{
			name:    "missing explicit file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			errText: "failed to load",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "profiles: [") },
			errText: "failed to parse YAML",
		},
		{
			name: "invalid profile",
			path: func(t *testing.T) string {
				return writeConfig(t, "profiles:\n  api:\n    base_url: ftp://x\n")
			},
			errText: "base_url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *apierrors.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("expected ConfigError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errText)
			}
		})
	}
}

func TestLoad_DefaultLocationMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(cfg.Profiles))
	}
}

func TestProfileSelection(t *testing.T) {
	cfg := &Config{Profiles: map[string]*Profile{
		"a": {BaseURL: "https://a.test"},
		"b": {BaseURL: "https://b.test"},
	}}

	if _, _, err := cfg.Profile(""); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound without default, got %v", err)
	}
	if _, _, err := cfg.Profile("c"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("expected ErrProfileNotFound for unknown name, got %v", err)
	}
	if p, _, err := cfg.Profile("b"); err != nil || p.BaseURL != "https://b.test" {
		t.Errorf("Profile(b) = %v, %v", p, err)
	}

	single := &Config{Profiles: map[string]*Profile{"only": {BaseURL: "https://o.test"}}}
	if _, name, err := single.Profile(""); err != nil || name != "only" {
		t.Errorf("single profile should be implicit default, got %q, %v", name, err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_EXPAND_SET", "value")
	t.Setenv("TEST_EXPAND_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${TEST_EXPAND_SET}", "value"},
		{"pre-${TEST_EXPAND_SET}-post", "pre-value-post"},
		{"${TEST_EXPAND_UNSET}", ""},
		{"${TEST_EXPAND_UNSET:-fallback}", "fallback"},
		{"${TEST_EXPAND_EMPTY:-fallback}", "fallback"},
		{"${TEST_EXPAND_SET:-fallback}", "value"},
		{"$TEST_EXPAND_SET", "$TEST_EXPAND_SET"},
		{"pa$$word", "pa$$word"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ExpandEnv(tt.in); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if dir != filepath.Join(base, "apiclient") {
		t.Errorf("ConfigDir() = %q", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("config dir not created: %v", err)
	}

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("ConfigPath() = %q", path)
	}
}
