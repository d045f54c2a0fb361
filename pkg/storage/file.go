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
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const (
	// PBKDF2 parameters
	pbkdf2Iterations = 100_000
	keyLength        = 32 // AES-256
	saltLength       = 16

	systemPasswordSuffix = "apiclient-v1"
	fileBackendName      = "file"
)

// EncryptedFileStorage keeps every record in one AES-256-GCM encrypted file.
//
// The key is derived with PBKDF2-HMAC-SHA256 from the caller's password or a
// per-machine fallback. The salt is derived from the absolute file path, so
// the file carries no metadata besides the nonce and ciphertext.
type EncryptedFileStorage struct {
	path        string
	salt        []byte
	logger      *slog.Logger
	lockTimeout time.Duration

	mu  sync.Mutex
	key []byte
}

// DefaultFilePath returns <user config dir>/apiclient/tokens.enc.
func DefaultFilePath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "apiclient", "tokens.enc"), nil
}

// NewEncryptedFileStorage opens (without reading) the token file at path.
// An empty path selects DefaultFilePath and an empty password selects the
// machine-derived fallback password.
func NewEncryptedFileStorage(path, password string, opts ...Option) (*EncryptedFileStorage, error) {
	o := buildOptions(opts)

	if path == "" {
		p, err := DefaultFilePath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token file path: %w", err)
	}

	if err := ensureParentDir(abs); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	if password == "" {
		password = SystemPassword()
	}

	sum := sha256.Sum256([]byte(abs))
	salt := sum[:saltLength]

	return &EncryptedFileStorage{
		path:        abs,
		salt:        salt,
		key:         deriveKey(password, salt),
		logger:      o.logger,
		lockTimeout: o.lockTimeout,
	}, nil
}

// SystemPassword returns the fallback password derived from the host name
// and the current user. It lets default usage work on one machine without
// configuration.
func SystemPassword() string {
	host, _ := os.Hostname()
	username := os.Getenv("USER")
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	sum := sha256.Sum256([]byte(host + ":" + username + ":" + systemPasswordSuffix))
	return hex.EncodeToString(sum[:])
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)
}

// Path returns the absolute path of the token file.
func (f *EncryptedFileStorage) Path() string {
	return f.path
}

// Store implements TokenStorage.
func (f *EncryptedFileStorage) Store(ctx context.Context, key string, rec *Record) error {
	return f.update(ctx, "write", key, func(records map[string]*Record) {
		records[key] = rec.Clone()
	})
}

// Get implements TokenStorage.
func (f *EncryptedFileStorage) Get(ctx context.Context, key string) (*Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load(f.key)
	if err != nil {
		return degrade(f.logger, fileBackendName, "read", key, err)
	}
	rec, ok := records[key]
	if !ok || rec == nil {
		return nil, false
	}
	return rec, true
}

// Delete implements TokenStorage.
func (f *EncryptedFileStorage) Delete(ctx context.Context, key string) error {
	return f.update(ctx, "delete", key, func(records map[string]*Record) {
		delete(records, key)
	})
}

// ClearAll removes the token file.
func (f *EncryptedFileStorage) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock, err := acquireFileLock(ctx, f.path, f.lockTimeout)
	if err != nil {
		return &apierrors.StorageError{Backend: fileBackendName, Op: "lock", Cause: err}
	}
	defer lock.release()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &apierrors.StorageError{Backend: fileBackendName, Op: "clear", Cause: err}
	}
	return nil
}

// Keys returns the stored keys in sorted order. An unreadable file has no keys.
func (f *EncryptedFileStorage) Keys(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load(f.key)
	if err != nil {
		f.logger.Debug("token file unreadable, listing no keys", slog.Any("error", err))
		return []string{}, nil
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ChangePassword re-encrypts the file under newPassword in one atomic write.
// On failure the previous password stays active.
func (f *EncryptedFileStorage) ChangePassword(ctx context.Context, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password must not be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	lock, err := acquireFileLock(ctx, f.path, f.lockTimeout)
	if err != nil {
		return &apierrors.StorageError{Backend: fileBackendName, Op: "lock", Cause: err}
	}
	defer lock.release()

	records, err := f.load(f.key)
	if err != nil {
		return &apierrors.StorageError{Backend: fileBackendName, Op: "decrypt", Cause: err}
	}

	newKey := deriveKey(newPassword, f.salt)
	if err := f.save(newKey, records); err != nil {
		zeroBytes(newKey)
		return &apierrors.StorageError{Backend: fileBackendName, Op: "write", Cause: err}
	}

	zeroBytes(f.key)
	f.key = newKey
	return nil
}

// update runs a read-modify-write cycle under both the in-process mutex and
// the cross-process file lock. An unreadable file is replaced.
func (f *EncryptedFileStorage) update(ctx context.Context, op, key string, mutate func(map[string]*Record)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lock, err := acquireFileLock(ctx, f.path, f.lockTimeout)
	if err != nil {
		return &apierrors.StorageError{Backend: fileBackendName, Op: "lock", Key: key, Cause: err}
	}
	defer lock.release()

	records, err := f.load(f.key)
	if err != nil {
		f.logger.Debug("token file unreadable, starting empty", slog.String("path", f.path), slog.Any("error", err))
		records = make(map[string]*Record)
	}

	mutate(records)

	if err := f.save(f.key, records); err != nil {
		return &apierrors.StorageError{Backend: fileBackendName, Op: op, Key: key, Cause: err}
	}
	return nil
}

// load reads and decrypts the file. A missing or empty file is an empty map.
func (f *EncryptedFileStorage) load(key []byte) (map[string]*Record, error) {
	blob, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*Record), nil
		}
		return nil, err
	}
	if len(blob) == 0 {
		return make(map[string]*Record), nil
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("token file too short")
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted data): %w", err)
	}
	defer zeroBytes(plaintext)

	records := make(map[string]*Record)
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return nil, fmt.Errorf("invalid token file contents: %w", err)
	}
	return records, nil
}

// save encrypts records and replaces the file atomically.
func (f *EncryptedFileStorage) save(key []byte, records map[string]*Record) error {
	plaintext, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	defer zeroBytes(plaintext)

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	blob := gcm.Seal(nonce, nonce, plaintext, nil)
	return writeFileAtomic(f.path, blob)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// writeFileAtomic writes data to a temp sibling, syncs it and renames it over
// path. Readers see either the old or the new file, never a partial one.
// renameFile is swapped in tests to observe the temp file before it lands.
var renameFile = os.Rename

func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	// O_TRUNC keeps the mode of a stale temp file left behind by a crash.
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := renameFile(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	return nil
}

// ensureParentDir creates the parent directory with owner-only permissions.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("parent path exists but is not a directory: %s", dir)
		}
		return nil
	}
	return os.MkdirAll(dir, 0700)
}

// zeroBytes securely zeros a byte slice.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
