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

package secrets

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	// ErrNotFound is returned when a provider has no value for a key.
	ErrNotFound = errors.New("secret not found")

	schemeRef = regexp.MustCompile(`^([a-z][a-z0-9]*):(.+)$`)

	builtinSchemes = map[string]bool{"env": true, "file": true, "keychain": true}
)

// Provider resolves the keys of one reference scheme.
type Provider interface {
	// Scheme returns the reference prefix, without the colon.
	Scheme() string

	// Resolve returns the secret stored under key.
	Resolve(ctx context.Context, key string) (string, error)
}

// ResolutionError describes a reference that could not be resolved.
type ResolutionError struct {
	Reference string
	Scheme    string
	Cause     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve secret %q: %v", e.Reference, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// Registry routes references to providers by scheme.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Scheme()] = p
	}
	return r
}

// NewDefaultRegistry registers the env, file and keychain providers. Keychain
// entries are looked up under service.
func NewDefaultRegistry(service string) *Registry {
	return NewRegistry(NewEnvProvider(), NewFileProvider(), NewKeychainProvider(service))
}

// Register adds p, failing if its scheme is taken.
func (r *Registry) Register(p Provider) error {
	if _, ok := r.providers[p.Scheme()]; ok {
		return fmt.Errorf("provider for scheme %q already registered", p.Scheme())
	}
	r.providers[p.Scheme()] = p
	return nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsReference reports whether value uses a registered scheme.
func (r *Registry) IsReference(value string) bool {
	scheme, _, ok := parse(value)
	if !ok {
		return false
	}
	_, registered := r.providers[scheme]
	return registered
}

// Resolve returns the secret value references, or value itself when it
// does not use a registered scheme.
func (r *Registry) Resolve(ctx context.Context, value string) (string, error) {
	scheme, key, ok := parse(value)
	if !ok {
		return value, nil
	}
	p, registered := r.providers[scheme]
	if !registered {
		return value, nil
	}
	secret, err := p.Resolve(ctx, key)
	if err != nil {
		return "", &ResolutionError{Reference: value, Scheme: scheme, Cause: err}
	}
	return secret, nil
}

// IsReference reports whether value uses one of the built-in schemes.
func IsReference(value string) bool {
	scheme, _, ok := parse(value)
	return ok && builtinSchemes[scheme]
}

func parse(value string) (scheme, key string, ok bool) {
	m := schemeRef.FindStringSubmatch(value)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
