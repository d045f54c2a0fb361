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

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStorage(t *testing.T, path, password string) *EncryptedFileStorage {
	t.Helper()
	s, err := NewEncryptedFileStorage(path, password, WithLogger(discardLogger()))
	require.NoError(t, err)
	return s
}

func TestEncryptedFileStorage_RoundTripIsExact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")
	s := newFileStorage(t, path, "secret")

	rec := sampleRecord("tok")
	want, err := json.Marshal(rec)
	require.NoError(t, err)

	require.NoError(t, s.Store(ctx, "oauth2_client", rec))

	// a fresh instance reads what the first wrote
	got, ok := newFileStorage(t, path, "secret").Get(ctx, "oauth2_client")
	require.True(t, ok)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(gotJSON))
}

func TestEncryptedFileStorage_OnDiskFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.enc")
	s := newFileStorage(t, path, "secret")

	require.NoError(t, s.Store(ctx, "k", sampleRecord("very-secret-access-token")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("very-secret-access-token")), "token must not appear in plaintext")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful write")
}

func TestEncryptedFileStorage_WrongPasswordReadsAbsent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")
	require.NoError(t, newFileStorage(t, path, "right").Store(ctx, "k", sampleRecord("tok")))

	other := newFileStorage(t, path, "wrong")
	_, ok := other.Get(ctx, "k")
	assert.False(t, ok)

	keys, err := other.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEncryptedFileStorage_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty file", []byte{}},
		{"too short", []byte{1, 2, 3}},
		{"garbage", bytes.Repeat([]byte{0xAB}, 128)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "tokens.enc")
			require.NoError(t, os.WriteFile(path, tt.content, 0600))

			s := newFileStorage(t, path, "pw")
			_, ok := s.Get(ctx, "k")
			assert.False(t, ok)

			// next write replaces the unreadable file
			require.NoError(t, s.Store(ctx, "k", sampleRecord("fresh")))
			got, ok := s.Get(ctx, "k")
			require.True(t, ok)
			assert.Equal(t, "fresh", got.AccessToken)
		})
	}
}

func TestEncryptedFileStorage_InterruptedWriteKeepsOldValue(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")
	s := newFileStorage(t, path, "pw")
	require.NoError(t, s.Store(ctx, "k", sampleRecord("old")))

	// a crash after writing the temp file but before the rename
	require.NoError(t, os.WriteFile(path+".tmp", []byte("partial"), 0600))

	got, ok := newFileStorage(t, path, "pw").Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "old", got.AccessToken)

	// and the next write still succeeds over the stale temp file
	require.NoError(t, s.Store(ctx, "k", sampleRecord("new")))
	got, ok = s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "new", got.AccessToken)
}

func TestWriteFileAtomic_StaleTempFileIsTightened(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")
	require.NoError(t, os.WriteFile(path+".tmp", []byte("stale"), 0600))
	require.NoError(t, os.Chmod(path+".tmp", 0644))

	var modeAtRename os.FileMode
	orig := renameFile
	renameFile = func(from, to string) error {
		info, err := os.Stat(from)
		if err != nil {
			return err
		}
		modeAtRename = info.Mode().Perm()
		return orig(from, to)
	}
	t.Cleanup(func() { renameFile = orig })

	require.NoError(t, writeFileAtomic(path, []byte("payload")))
	assert.Equal(t, os.FileMode(0600), modeAtRename)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(raw))
}

func TestEncryptedFileStorage_ChangePassword(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")
	s := newFileStorage(t, path, "old-pw")
	require.NoError(t, s.Store(ctx, "k", sampleRecord("tok")))

	require.NoError(t, s.ChangePassword(ctx, "new-pw"))

	got, ok := s.Get(ctx, "k")
	require.True(t, ok, "the rotating instance keeps reading")
	assert.Equal(t, "tok", got.AccessToken)

	_, ok = newFileStorage(t, path, "new-pw").Get(ctx, "k")
	assert.True(t, ok)

	_, ok = newFileStorage(t, path, "old-pw").Get(ctx, "k")
	assert.False(t, ok)

	assert.Error(t, s.ChangePassword(ctx, ""))
}

func TestEncryptedFileStorage_ChangePasswordFailsOnUnreadableFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")
	require.NoError(t, newFileStorage(t, path, "a").Store(ctx, "k", sampleRecord("tok")))

	s := newFileStorage(t, path, "b")
	assert.Error(t, s.ChangePassword(ctx, "c"))

	_, ok := newFileStorage(t, path, "a").Get(ctx, "k")
	assert.True(t, ok, "file must be untouched after a failed rotation")
}

func TestEncryptedFileStorage_SaltDependsOnPath(t *testing.T) {
	dir := t.TempDir()
	a := newFileStorage(t, filepath.Join(dir, "a.enc"), "pw")
	b := newFileStorage(t, filepath.Join(dir, "b.enc"), "pw")
	assert.NotEqual(t, a.salt, b.salt)
	assert.Len(t, a.salt, saltLength)
	assert.NotEqual(t, a.key, b.key)
}

func TestEncryptedFileStorage_ConcurrentStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.enc")

	// two instances on one file simulate two processes
	s1 := newFileStorage(t, path, "pw")
	s2 := newFileStorage(t, path, "pw")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := s1
			if i%2 == 1 {
				s = s2
			}
			assert.NoError(t, s.Store(ctx, string(rune('a'+i)), sampleRecord("tok")))
		}(i)
	}
	wg.Wait()

	keys, err := s1.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 10, "no read-modify-write cycle may lose an update")
}

func TestSystemPassword_Deterministic(t *testing.T) {
	assert.Equal(t, SystemPassword(), SystemPassword())
	assert.Len(t, SystemPassword(), 64)
}
