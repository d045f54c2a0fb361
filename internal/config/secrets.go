package config

import (
	"context"

	"github.com/tombee/apiclient/internal/secrets"
	apierrors "github.com/tombee/apiclient/pkg/errors"
)

// ResolveSecrets replaces env:, file: and keychain: references in the
// profile's credential fields with their values. Other values are kept.
func (p *Profile) ResolveSecrets(ctx context.Context, r *secrets.Registry) error {
	fields := []struct {
		key   string
		value *string
	}{
		{"auth.token", &p.Auth.Token},
		{"auth.password", &p.Auth.Password},
		{"auth.key", &p.Auth.Key},
		{"auth.client_id", &p.Auth.ClientID},
		{"auth.client_secret", &p.Auth.ClientSecret},
		{"auth.secret", &p.Auth.Secret},
		{"auth.access_key_id", &p.Auth.AccessKeyID},
		{"auth.secret_access_key", &p.Auth.SecretAccessKey},
		{"auth.session_token", &p.Auth.SessionToken},
		{"storage.password", &p.Storage.Password},
	}
	if p.Storage.Redis != nil {
		fields = append(fields, struct {
			key   string
			value *string
		}{"storage.redis.password", &p.Storage.Redis.Password})
	}

	for _, f := range fields {
		if *f.value == "" {
			continue
		}
		v, err := r.Resolve(ctx, *f.value)
		if err != nil {
			return &apierrors.ConfigError{Key: f.key, Reason: "secret reference could not be resolved", Cause: err}
		}
		*f.value = v
	}
	return nil
}
