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

package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// TestJSONResponseEnvelope verifies the base envelope structure
func TestJSONResponseEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := EmitJSON(&buf, NewJSONResponse("version")); err != nil {
		t.Fatalf("EmitJSON() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got["@version"] != "1.0" {
		t.Errorf("@version = %v", got["@version"])
	}
	if got["command"] != "version" {
		t.Errorf("command = %v", got["command"])
	}
	if got["success"] != true {
		t.Errorf("success = %v", got["success"])
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n  \"command\"")) {
		t.Errorf("expected indented output, got %q", buf.String())
	}
}

func TestEmitJSONError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   string
		suggestion bool
	}{
		{
			name:     "http error",
			err:      NewRequestError("request failed", &apierrors.HTTPError{StatusCode: http.StatusTooManyRequests, Method: "GET", URL: "https://api.test"}),
			wantType: "rate_limit",
		},
		{
			name:       "circuit open",
			err:        &apierrors.TransportError{Type: apierrors.ErrorTypeCircuitOpen, Method: "GET", URL: "https://api.test"},
			wantType:   "circuit_open",
			suggestion: true,
		},
		{
			name:     "unclassified",
			err:      errors.New("boom"),
			wantType: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := EmitJSONError(&buf, "request", tt.err); err != nil {
				t.Fatalf("EmitJSONError() error = %v", err)
			}

			var resp struct {
				JSONResponse
				Error JSONError `json:"error"`
			}
			if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
				t.Fatalf("invalid JSON %q: %v", buf.String(), err)
			}
			if resp.Success {
				t.Error("expected success false")
			}
			if resp.Command != "request" {
				t.Errorf("command = %q", resp.Command)
			}
			if resp.Error.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Error.Type, tt.wantType)
			}
			if resp.Error.Message != tt.err.Error() {
				t.Errorf("message = %q, want %q", resp.Error.Message, tt.err.Error())
			}
			if (resp.Error.Suggestion != "") != tt.suggestion {
				t.Errorf("suggestion = %q", resp.Error.Suggestion)
			}
		})
	}
}
