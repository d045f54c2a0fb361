package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func testRegistry(t *testing.T, env map[string]string) *Registry {
	t.Helper()
	keyring.MockInit()
	envProvider := &EnvProvider{lookup: func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}}
	return NewRegistry(envProvider, NewFileProvider(), NewKeychainProvider("apiclient-test"))
}

func TestRegistryResolve(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte("from-file\n"), 0o600))

	r := testRegistry(t, map[string]string{"CLIENT_SECRET": "from-env", "EMPTY": ""})
	require.NoError(t, keyring.Set("apiclient-test", "github", "from-keychain"))

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "env", value: "env:CLIENT_SECRET", want: "from-env"},
		{name: "file", value: "file:" + secretFile, want: "from-file"},
		{name: "keychain", value: "keychain:github", want: "from-keychain"},
		{name: "plain value", value: "s3cr3t", want: "s3cr3t"},
		{name: "url passes through", value: "https://auth.example.com/token", want: "https://auth.example.com/token"},
		{name: "unknown scheme passes through", value: "vault:secret/data", want: "vault:secret/data"},
		{name: "missing env", value: "env:NOPE", wantErr: true},
		{name: "empty env", value: "env:EMPTY", wantErr: true},
		{name: "missing file", value: "file:" + filepath.Join(dir, "missing"), wantErr: true},
		{name: "relative file", value: "file:secret", wantErr: true},
		{name: "missing keychain entry", value: "keychain:absent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.value)
			if tt.wantErr {
				require.Error(t, err)
				var re *ResolutionError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, tt.value, re.Reference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r := testRegistry(t, nil)

	_, err := r.Resolve(context.Background(), "env:MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "keychain:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileProviderSizeLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o600))

	p := &FileProvider{MaxSize: 10}
	_, err := p.Resolve(context.Background(), path)
	assert.ErrorContains(t, err, "exceeds")

	_, err = p.Resolve(context.Background(), filepath.Dir(path))
	assert.ErrorContains(t, err, "directory")
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(NewEnvProvider())
	assert.Error(t, r.Register(NewEnvProvider()))
	require.NoError(t, r.Register(NewFileProvider()))
	assert.Equal(t, []string{"env", "file"}, r.Schemes())

	assert.True(t, r.IsReference("file:/x"))
	assert.False(t, r.IsReference("keychain:x"))
}

func TestIsReference(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"env:TOKEN", true},
		{"file:/etc/secret", true},
		{"keychain:github", true},
		{"env:", false},
		{"https://example.com", false},
		{"plain", false},
		{"Env:TOKEN", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReference(tt.value), tt.value)
	}
}
