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

package tracing

import (
	"context"
	"net/http"
	"testing"
)

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()

	if id == "" {
		t.Error("expected non-empty correlation ID")
	}
	if !id.IsValid() {
		t.Errorf("expected valid UUID format, got %q", id)
	}
	if len(id) != 36 {
		t.Errorf("expected length 36, got %d", len(id))
	}
}

func TestCorrelationID_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		id    CorrelationID
		valid bool
	}{
		{"valid UUID", CorrelationID("550e8400-e29b-41d4-a716-446655440000"), true},
		{"valid UUID uppercase", CorrelationID("550E8400-E29B-41D4-A716-446655440000"), true},
		{"empty", CorrelationID(""), false},
		{"too short", CorrelationID("550e8400-e29b-41d4"), false},
		{"missing hyphens", CorrelationID("550e8400e29b41d4a716446655440000"), false},
		{"invalid characters", CorrelationID("550e8400-e29b-41d4-a716-44665544000g"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if !id.IsValid() {
		t.Fatalf("generated ID invalid: %q", id)
	}
	if got := FromContextOrEmpty(ctx); got != id {
		t.Errorf("FromContextOrEmpty() = %q, want %q", got, id)
	}

	again, same := Ensure(ctx)
	if same != id || FromContextOrEmpty(again) != id {
		t.Errorf("Ensure must keep an existing ID")
	}
}

func TestInjectIntoRequest(t *testing.T) {
	id := CorrelationID("550e8400-e29b-41d4-a716-446655440000")
	ctx := ToContext(context.Background(), id)

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	InjectIntoRequest(ctx, req)
	if got := req.Header.Get(HeaderCorrelationID); got != id.String() {
		t.Errorf("header = %q, want %q", got, id)
	}

	preset, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	preset.Header.Set(HeaderCorrelationID, "caller-chosen")
	InjectIntoRequest(ctx, preset)
	if got := preset.Header.Get(HeaderCorrelationID); got != "caller-chosen" {
		t.Errorf("caller header overwritten: %q", got)
	}

	empty, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	InjectIntoRequest(context.Background(), empty)
	if got := empty.Header.Get(HeaderCorrelationID); got != "" {
		t.Errorf("expected no header without an ID, got %q", got)
	}
}
