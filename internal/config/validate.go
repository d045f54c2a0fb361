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
	"fmt"
	"net/url"
	"strings"
)

// Validate checks every profile and returns all problems found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.DefaultProfile != "" {
		if _, ok := c.Profiles[c.DefaultProfile]; !ok {
			errs = append(errs, fmt.Errorf("default_profile %q not found in profiles", c.DefaultProfile))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be json or text, got %q", c.Log.Format))
	}

	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		path := "profiles." + name
		if err := ValidateProfileName(name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		if p == nil {
			errs = append(errs, fmt.Errorf("%s: profile is empty", path))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s.%w", path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate checks one profile. Error messages start with the offending
// field path relative to the profile.
func (p *Profile) Validate() error {
	var errs []error

	if p.BaseURL != "" {
		u, err := url.Parse(p.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("base_url: must be an http or https URL, got %q", p.BaseURL))
		}
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout: must be non-negative, got %v", p.Timeout))
	}
	if err := p.Auth.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auth.%w", err))
	}
	if p.Retry != nil {
		if err := p.Retry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("retry.%w", err))
		}
	}
	if p.RateLimit != nil {
		if err := p.RateLimit.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rate_limit.%w", err))
		}
	}
	if err := p.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage.%w", err))
	}
	if p.CircuitBreaker != nil {
		b := p.CircuitBreaker
		if b.MaxFailures < 0 || b.MaxRequests < 0 || b.Timeout < 0 {
			errs = append(errs, fmt.Errorf("circuit_breaker: values must be non-negative"))
		}
	}
	return errors.Join(errs...)
}

// Validate checks that the fields required by the selected type are set.
func (a *AuthConfig) Validate() error {
	required := func(pairs ...string) error {
		var missing []string
		for i := 0; i < len(pairs); i += 2 {
			if strings.TrimSpace(pairs[i+1]) == "" {
				missing = append(missing, pairs[i])
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s: required for auth type %q", strings.Join(missing, ", "), a.Type)
		}
		return nil
	}

	switch a.Type {
	case "", AuthNone:
		return nil
	case AuthBearer:
		return required("token", a.Token)
	case AuthBasic:
		return required("username", a.Username, "password", a.Password)
	case AuthAPIKey:
		return required("key", a.Key)
	case AuthOAuth2:
		if err := required("client_id", a.ClientID, "client_secret", a.ClientSecret, "token_url", a.TokenURL); err != nil {
			return err
		}
		if a.ExpiryMargin < 0 {
			return fmt.Errorf("expiry_margin: must be non-negative")
		}
		return nil
	case AuthJWT:
		alg := strings.ToUpper(a.Algorithm)
		if alg == "" || strings.HasPrefix(alg, "HS") {
			return required("secret", a.Secret)
		}
		return required("private_key_file", a.PrivateKeyFile)
	case AuthSigV4:
		if err := required("service", a.Service, "region", a.Region); err != nil {
			return err
		}
		if a.AccessKeyID != "" && a.SecretAccessKey == "" {
			return fmt.Errorf("secret_access_key: required with access_key_id")
		}
		return nil
	default:
		return fmt.Errorf("type: unknown auth type %q", a.Type)
	}
}

// Validate checks retry ranges.
func (r *RetryConfig) Validate() error {
	switch {
	case r.MaxRetries < 0:
		return fmt.Errorf("max_retries: must be non-negative, got %d", r.MaxRetries)
	case r.BaseDelay < 0 || r.MaxDelay < 0:
		return fmt.Errorf("base_delay, max_delay: must be non-negative")
	case r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay:
		return fmt.Errorf("base_delay: %v exceeds max_delay %v", r.BaseDelay, r.MaxDelay)
	case r.ExponentialBase != 0 && r.ExponentialBase < 1:
		return fmt.Errorf("exponential_base: must be at least 1, got %v", r.ExponentialBase)
	}
	return nil
}

// Validate checks the limiter parameters for the selected type.
func (r *RateLimitConfig) Validate() error {
	switch r.Type {
	case "", RateLimitFixed, RateLimitAdaptive:
		if r.RequestsPerSecond <= 0 {
			return fmt.Errorf("requests_per_second: must be positive, got %v", r.RequestsPerSecond)
		}
		if r.Burst < 0 {
			return fmt.Errorf("burst: must be non-negative, got %d", r.Burst)
		}
	case RateLimitMultiWindow:
		if r.PerSecond < 0 || r.PerMinute < 0 || r.PerHour < 0 {
			return fmt.Errorf("per_second, per_minute, per_hour: must be non-negative")
		}
		if r.PerSecond == 0 && r.PerMinute == 0 && r.PerHour == 0 {
			return fmt.Errorf("per_second, per_minute, per_hour: at least one window is required")
		}
	default:
		return fmt.Errorf("type: unknown rate limit type %q", r.Type)
	}
	return nil
}

// Validate checks the storage backend selection.
func (s *StorageConfig) Validate() error {
	switch s.Type {
	case "", StorageMemory, StorageEncryptedFile, StorageKeychain:
	case StorageSQLite:
		if s.Table != "" && !tableName.MatchString(s.Table) {
			return fmt.Errorf("table: invalid table name %q", s.Table)
		}
	case StorageRedis:
		if s.Redis == nil || s.Redis.Address == "" {
			return fmt.Errorf("redis.address: required for storage type %q", s.Type)
		}
	default:
		return fmt.Errorf("type: unknown storage type %q", s.Type)
	}
	return nil
}
