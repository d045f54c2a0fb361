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

// Package storage persists OAuth2 token records.
//
// Every backend implements TokenStorage. Reads never fail: a missing,
// corrupt or unreadable record is reported as absent and the failure is
// logged at debug level, so a broken cache only costs an extra token
// exchange.
package storage

import (
	"context"
	"log/slog"
	"maps"
	"math"
	"time"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// TokenStorage is the persistence contract used by the OAuth2 flow.
type TokenStorage interface {
	// Store writes rec under key, replacing any previous record.
	Store(ctx context.Context, key string, rec *Record) error

	// Get returns the record stored under key. The boolean is false when the
	// record is missing or could not be read.
	Get(ctx context.Context, key string) (*Record, bool)

	// Delete removes the record stored under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// ClearAll removes every record owned by the storage.
	ClearAll(ctx context.Context) error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Record is a persisted token. Timestamps are unix seconds.
type Record struct {
	AccessToken  string         `json:"access_token"`
	TokenType    string         `json:"token_type,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	CreatedAt    float64        `json:"created_at,omitempty"`
	ExpiresAt    float64        `json:"expires_at,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Clone returns a copy of r that shares no mutable state with it.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Extra != nil {
		c.Extra = maps.Clone(r.Extra)
	}
	return &c
}

// Expiry returns the absolute expiry of the record. It prefers ExpiresAt and
// falls back to CreatedAt+ExpiresIn. The boolean is false when neither is
// available, in which case the record must be treated as expired.
func (r *Record) Expiry() (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	switch {
	case r.ExpiresAt > 0:
		return fromUnix(r.ExpiresAt), true
	case r.CreatedAt > 0 && r.ExpiresIn > 0:
		return fromUnix(r.CreatedAt + float64(r.ExpiresIn)), true
	default:
		return time.Time{}, false
	}
}

// Unix converts t to float unix seconds as stored in a Record.
func Unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

// degrade logs a read failure and reports the record as absent.
func degrade(logger *slog.Logger, backend, op, key string, err error) (*Record, bool) {
	logger.Debug("token storage read degraded to absent",
		slog.Any("error", &apierrors.StorageError{Backend: backend, Op: op, Key: key, Cause: err}))
	return nil, false
}
