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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
	if cfg.AddSource {
		t.Errorf("expected default AddSource to be false")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults when no env vars",
			envVars:    map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
		{
			name:       "LOG_LEVEL=DEBUG (case insensitive)",
			envVars:    map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
		},
		{
			name:       "APICLIENT_LOG_LEVEL wins over LOG_LEVEL",
			envVars:    map[string]string{"LOG_LEVEL": "warn", "APICLIENT_LOG_LEVEL": "error"},
			wantLevel:  "error",
			wantFormat: FormatJSON,
		},
		{
			name:       "APICLIENT_DEBUG enables debug and source",
			envVars:    map[string]string{"APICLIENT_DEBUG": "1", "LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatJSON,
			wantSource: true,
		},
		{
			name:       "LOG_FORMAT=text and LOG_SOURCE=1",
			envVars:    map[string]string{"LOG_FORMAT": "text", "LOG_SOURCE": "1"},
			wantLevel:  "info",
			wantFormat: FormatText,
			wantSource: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"APICLIENT_DEBUG", "APICLIENT_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.wantSource)
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	WithComponent(logger, "oauth2").Debug("token refreshed", StorageKeyKey, "oauth2_abc", Error(errors.New("x")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != "oauth2" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["storage_key"] != "oauth2_abc" {
		t.Errorf("storage_key = %v", entry["storage_key"])
	}
	if entry["error"] != "x" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	Trace(New(&Config{Level: "debug", Output: &buf}), "body", slog.String("k", "v"))
	if buf.Len() != 0 {
		t.Errorf("trace should be disabled at debug level")
	}

	Trace(New(&Config{Level: "trace", Output: &buf}), "body", slog.String("k", "v"))
	if !strings.Contains(buf.String(), "body") {
		t.Errorf("trace message missing: %s", buf.String())
	}
}

func TestSanitize(t *testing.T) {
	if got := SanitizeSecret("hunter2"); got != "[REDACTED]" {
		t.Errorf("SanitizeSecret = %q", got)
	}
	if got := SanitizeToken("short"); got != "[REDACTED]" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdefghijkl"); got != "...ijkl" {
		t.Errorf("SanitizeToken = %q", got)
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) != slog.Default() {
		t.Errorf("nil logger should resolve to slog.Default()")
	}
	l := Discard()
	if OrDefault(l) != l {
		t.Errorf("non-nil logger should be returned unchanged")
	}
}
