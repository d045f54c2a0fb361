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
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const (
	// DefaultKeychainService is the keyring service name for token records.
	DefaultKeychainService = "apiclient"

	keychainIndexKey    = "__apiclient_index__"
	keychainBackendName = "keychain"
)

// KeychainStorage stores records in the OS keyring (macOS Keychain, Secret
// Service, Windows Credential Manager). Keyrings cannot be enumerated
// portably, so the storage maintains an index entry of its own keys.
type KeychainStorage struct {
	service string
	logger  *slog.Logger

	// guards the index read-modify-write
	mu sync.Mutex
}

// NewKeychainStorage creates a keyring-backed store.
func NewKeychainStorage(opts ...Option) *KeychainStorage {
	o := buildOptions(opts)
	return &KeychainStorage{service: o.service, logger: o.logger}
}

// Available reports whether the keyring answers requests.
func (k *KeychainStorage) Available() bool {
	_, err := keyring.Get(k.service, keychainIndexKey)
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

// Store implements TokenStorage.
func (k *KeychainStorage) Store(_ context.Context, key string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &apierrors.StorageError{Backend: keychainBackendName, Op: "encode", Key: key, Cause: err}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(k.service, key, string(data)); err != nil {
		return &apierrors.StorageError{Backend: keychainBackendName, Op: "write", Key: key, Cause: err}
	}

	index := k.readIndex()
	if _, ok := index[key]; !ok {
		index[key] = struct{}{}
		if err := k.writeIndex(index); err != nil {
			return &apierrors.StorageError{Backend: keychainBackendName, Op: "index", Key: key, Cause: err}
		}
	}
	return nil
}

// Get implements TokenStorage.
func (k *KeychainStorage) Get(_ context.Context, key string) (*Record, bool) {
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, false
		}
		return degrade(k.logger, keychainBackendName, "read", key, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return degrade(k.logger, keychainBackendName, "decode", key, err)
	}
	return &rec, true
}

// Delete implements TokenStorage.
func (k *KeychainStorage) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.deleteLocked(key)
}

// ClearAll deletes every indexed record and the index itself.
func (k *KeychainStorage) ClearAll(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for key := range k.readIndex() {
		if err := k.deleteLocked(key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := keyring.Delete(k.service, keychainIndexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		errs = append(errs, &apierrors.StorageError{Backend: keychainBackendName, Op: "clear", Cause: err})
	}
	return errors.Join(errs...)
}

// Keys returns the indexed keys in sorted order.
func (k *KeychainStorage) Keys(context.Context) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	index := k.readIndex()
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (k *KeychainStorage) deleteLocked(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return &apierrors.StorageError{Backend: keychainBackendName, Op: "delete", Key: key, Cause: err}
	}

	index := k.readIndex()
	if _, ok := index[key]; ok {
		delete(index, key)
		if err := k.writeIndex(index); err != nil {
			return &apierrors.StorageError{Backend: keychainBackendName, Op: "index", Key: key, Cause: err}
		}
	}
	return nil
}

func (k *KeychainStorage) readIndex() map[string]struct{} {
	index := make(map[string]struct{})
	value, err := keyring.Get(k.service, keychainIndexKey)
	if err != nil {
		return index
	}
	var keys []string
	if err := json.Unmarshal([]byte(value), &keys); err != nil {
		k.logger.Debug("keychain index unreadable, rebuilding", slog.Any("error", err))
		return index
	}
	for _, key := range keys {
		index[key] = struct{}{}
	}
	return index
}

func (k *KeychainStorage) writeIndex(index map[string]struct{}) error {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, keychainIndexKey, string(data))
}
