package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func sampleRecord(token string) *Record {
	return &Record{
		AccessToken:  token,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + token,
		Scope:        "read write",
		ExpiresIn:    3600,
		CreatedAt:    1700000000,
		ExpiresAt:    1700003600,
		Extra:        map[string]any{"tenant": "acme"},
	}
}

type backendFactory struct {
	name string
	new  func(t *testing.T) TokenStorage
}

func backends() []backendFactory {
	return []backendFactory{
		{"memory", func(t *testing.T) TokenStorage { return NewMemoryStorage() }},
		{"encrypted_file", func(t *testing.T) TokenStorage {
			s, err := NewEncryptedFileStorage(filepath.Join(t.TempDir(), "tokens.enc"), "pw", WithLogger(discardLogger()))
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) TokenStorage {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStorage(client, WithLogger(discardLogger()))
		}},
		{"keychain", func(t *testing.T) TokenStorage {
			keyring.MockInit()
			return NewKeychainStorage(WithServiceName("apiclient-test-"+t.Name()), WithLogger(discardLogger()))
		}},
		{"sqlite", func(t *testing.T) TokenStorage {
			s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "tokens.db"), WithLogger(discardLogger()))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func TestTokenStorage_Contract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.new(t)

			_, ok := s.Get(ctx, "missing")
			assert.False(t, ok, "missing key must read as absent")

			rec := sampleRecord("tok-1")
			require.NoError(t, s.Store(ctx, "oauth2_a", rec))
			require.NoError(t, s.Store(ctx, "oauth2_b", sampleRecord("tok-2")))

			got, ok := s.Get(ctx, "oauth2_a")
			require.True(t, ok)
			assert.Equal(t, rec, got)

			// overwrite in place
			require.NoError(t, s.Store(ctx, "oauth2_a", sampleRecord("tok-3")))
			got, ok = s.Get(ctx, "oauth2_a")
			require.True(t, ok)
			assert.Equal(t, "tok-3", got.AccessToken)

			if lister, ok := s.(Lister); ok {
				keys, err := lister.Keys(ctx)
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{"oauth2_a", "oauth2_b"}, keys)
			}

			require.NoError(t, s.Delete(ctx, "oauth2_a"))
			_, ok = s.Get(ctx, "oauth2_a")
			assert.False(t, ok)
			assert.NoError(t, s.Delete(ctx, "oauth2_a"), "deleting a missing key is not an error")

			require.NoError(t, s.ClearAll(ctx))
			_, ok = s.Get(ctx, "oauth2_b")
			assert.False(t, ok)

			if lister, ok := s.(Lister); ok {
				keys, err := lister.Keys(ctx)
				require.NoError(t, err)
				assert.Empty(t, keys)
			}
		})
	}
}

func TestMemoryStorage_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	rec := sampleRecord("original")
	require.NoError(t, s.Store(ctx, "k", rec))
	rec.AccessToken = "mutated"
	rec.Extra["tenant"] = "other"

	got, ok := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "original", got.AccessToken)
	assert.Equal(t, "acme", got.Extra["tenant"])

	got.AccessToken = "mutated-again"
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "original", again.AccessToken)
	assert.Equal(t, 1, s.Len())
}

func TestRecord_Expiry(t *testing.T) {
	tests := []struct {
		name   string
		rec    *Record
		want   time.Time
		wantOK bool
	}{
		{"nil record", nil, time.Time{}, false},
		{"absolute expiry", &Record{ExpiresAt: 1700000000.5}, time.Unix(1700000000, 500_000_000), true},
		{"recomputed from created_at", &Record{CreatedAt: 1700000000, ExpiresIn: 60}, time.Unix(1700000060, 0), true},
		{"expires_at wins", &Record{ExpiresAt: 1700000100, CreatedAt: 1700000000, ExpiresIn: 60}, time.Unix(1700000100, 0), true},
		{"no expiry data", &Record{AccessToken: "x", ExpiresIn: 60}, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rec.Expiry()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
			}
		})
	}
}

func TestUnix_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 250_000_000)
	rec := &Record{ExpiresAt: Unix(now)}
	got, ok := rec.Expiry()
	require.True(t, ok)
	assert.WithinDuration(t, now, got, time.Microsecond)
}
