package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

// MaxFileSize bounds secrets read by FileProvider.
const MaxFileSize = 64 * 1024

// EnvProvider resolves env: references.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider reads from the process environment.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// Scheme implements Provider.
func (p *EnvProvider) Scheme() string { return "env" }

// Resolve implements Provider. Unset and empty variables are not found.
func (p *EnvProvider) Resolve(_ context.Context, key string) (string, error) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, key)
	}
	return v, nil
}

// FileProvider resolves file: references to absolute paths.
type FileProvider struct {
	MaxSize int64
}

// NewFileProvider creates a FileProvider limited to MaxFileSize.
func NewFileProvider() *FileProvider {
	return &FileProvider{MaxSize: MaxFileSize}
}

// Scheme implements Provider.
func (p *FileProvider) Scheme() string { return "file" }

// Resolve implements Provider.
func (p *FileProvider) Resolve(_ context.Context, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", errors.New("path must be absolute")
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", errors.New("path is a directory")
	}
	if p.MaxSize > 0 && info.Size() > p.MaxSize {
		return "", fmt.Errorf("file exceeds %d bytes", p.MaxSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// KeychainProvider resolves keychain: references through the system keyring.
type KeychainProvider struct {
	service string
}

// NewKeychainProvider looks entries up under service.
func NewKeychainProvider(service string) *KeychainProvider {
	return &KeychainProvider{service: service}
}

// Scheme implements Provider.
func (p *KeychainProvider) Scheme() string { return "keychain" }

// Resolve implements Provider.
func (p *KeychainProvider) Resolve(_ context.Context, key string) (string, error) {
	v, err := keyring.Get(p.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain unavailable: %w", err)
	}
	return v, nil
}
