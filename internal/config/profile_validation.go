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
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiclient/internal/secrets"
)

// PlaintextCredentialPattern represents a pattern for detecting plaintext credentials.
type PlaintextCredentialPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

var (
	// PlaintextCredentialPatterns contains patterns for detecting common credential formats.
	PlaintextCredentialPatterns = []PlaintextCredentialPattern{
		{
			Name:    "GitHub Token",
			Pattern: regexp.MustCompile(`\b(ghp_|gho_|ghu_|ghs_|ghr_)[a-zA-Z0-9]{36,}\b`),
		},
		{
			Name:    "OpenAI API Key",
			Pattern: regexp.MustCompile(`\bsk-[a-zA-Z0-9]{20,}\b`),
		},
		{
			Name:    "AWS Access Key",
			Pattern: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
		},
		{
			Name:    "Slack Token",
			Pattern: regexp.MustCompile(`\b(xoxb-|xoxp-|xoxa-|xoxr-)[0-9]{10,13}-[0-9]{10,13}-[a-zA-Z0-9]{24,}\b`),
		},
	}

	profileName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)
	tableName   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateProfileName checks that a profile name is lowercase
// alphanumerics, '-' and '_', starting with a letter or digit.
func ValidateProfileName(name string) error {
	if !profileName.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: use lowercase letters, digits, '-' and '_'", name)
	}
	return nil
}

// CheckPlaintextSecrets reads the configuration at path without expanding
// environment references and warns about secrets written inline.
func CheckPlaintextSecrets(path string) ([]string, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	raw := Default()
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var warnings []string
	for _, name := range raw.ProfileNames() {
		if p := raw.Profiles[name]; p != nil {
			warnings = append(warnings, detectPlaintextCredentials("profiles."+name, p)...)
		}
	}
	return warnings, nil
}

// detectPlaintextCredentials scans the secret fields of one unexpanded profile.
func detectPlaintextCredentials(profilePath string, p *Profile) []string {
	fields := []struct {
		path  string
		value string
	}{
		{"auth.token", p.Auth.Token},
		{"auth.password", p.Auth.Password},
		{"auth.key", p.Auth.Key},
		{"auth.client_secret", p.Auth.ClientSecret},
		{"auth.secret", p.Auth.Secret},
		{"auth.access_key_id", p.Auth.AccessKeyID},
		{"auth.secret_access_key", p.Auth.SecretAccessKey},
		{"auth.session_token", p.Auth.SessionToken},
		{"storage.password", p.Storage.Password},
	}
	if p.Storage.Redis != nil {
		fields = append(fields, struct {
			path  string
			value string
		}{"storage.redis.password", p.Storage.Redis.Password})
	}

	var warnings []string
	for _, f := range fields {
		if f.value == "" || isSecretReference(f.value) {
			continue
		}
		kind := "secret"
		for _, pattern := range PlaintextCredentialPatterns {
			if pattern.Pattern.MatchString(f.value) {
				kind = pattern.Name
				break
			}
		}
		warnings = append(warnings, fmt.Sprintf("%s.%s: detected plaintext %s (use a ${VAR}, env:, file: or keychain: reference instead)", profilePath, f.path, kind))
	}
	return warnings
}

// isSecretReference reports whether value is a provider reference or made
// up entirely of environment references.
func isSecretReference(value string) bool {
	return secrets.IsReference(value) || strings.TrimSpace(envRef.ReplaceAllString(value, "")) == ""
}
