package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/internal/metrics"
	"github.com/tombee/apiclient/pkg/auth"
	"github.com/tombee/apiclient/pkg/client"
	"github.com/tombee/apiclient/pkg/ratelimit"
	"github.com/tombee/apiclient/pkg/retry"
	"github.com/tombee/apiclient/pkg/storage"
)

// BuildOptions carries process-wide collaborators into the Build functions.
type BuildOptions struct {
	Logger         *slog.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

func (o BuildOptions) logger() *slog.Logger {
	return log.OrDefault(o.Logger)
}

// Components is everything built from one profile.
type Components struct {
	Session *client.Session
	Auth    auth.Strategy
	Storage storage.TokenStorage
}

// OAuth2 returns the OAuth2 flow when the profile uses one.
func (c *Components) OAuth2() (*auth.OAuth2Flow, bool) {
	flow, ok := c.Auth.(*auth.OAuth2Flow)
	return flow, ok
}

// Close closes the Session and any storage holding connections.
func (c *Components) Close() error {
	var errs []error
	if c.Session != nil {
		errs = append(errs, c.Session.Close())
	}
	if closer, ok := c.Storage.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// BuildSession builds the storage, auth strategy, retry strategy, limiter
// and Session described by p. The caller must Close the result.
func BuildSession(ctx context.Context, p *Profile, opts BuildOptions) (*Components, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	logger := opts.logger()

	c := &Components{}
	if p.Auth.Type == AuthOAuth2 {
		st, err := BuildStorage(p.Storage, logger)
		if err != nil {
			return nil, err
		}
		c.Storage = st
	}

	strategy, err := BuildAuth(ctx, p.Auth, c.Storage, opts)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Auth = strategy

	sessionOpts := []client.Option{
		client.WithLogger(logger),
		client.WithHeaders(p.Headers),
	}
	if strategy != nil {
		sessionOpts = append(sessionOpts, client.WithAuth(strategy))
	}
	if p.Timeout > 0 {
		sessionOpts = append(sessionOpts, client.WithTimeout(p.Timeout))
	}
	if p.UserAgent != "" {
		sessionOpts = append(sessionOpts, client.WithUserAgent(p.UserAgent))
	}
	if st := BuildRetry(p.Retry); st != nil {
		sessionOpts = append(sessionOpts, client.WithRetry(st))
	}
	if p.RateLimit != nil {
		lim, err := BuildLimiter(p.RateLimit, logger)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		sessionOpts = append(sessionOpts, client.WithRateLimit(lim))
	}
	if p.CircuitBreaker != nil {
		sessionOpts = append(sessionOpts, client.WithCircuitBreaker(client.BreakerConfig{
			MaxFailures: p.CircuitBreaker.MaxFailures,
			Timeout:     p.CircuitBreaker.Timeout,
			MaxRequests: p.CircuitBreaker.MaxRequests,
		}))
	}
	if opts.TracerProvider != nil {
		sessionOpts = append(sessionOpts, client.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Registerer != nil {
		sessionOpts = append(sessionOpts, client.WithMetrics(opts.Registerer))
	}

	sess, err := client.New(p.BaseURL, sessionOpts...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Session = sess
	return c, nil
}

// BuildAuth builds the strategy selected by a. It returns nil for "none".
// store is only used by oauth2 and may be nil (in-memory tokens).
func BuildAuth(ctx context.Context, a AuthConfig, store storage.TokenStorage, opts BuildOptions) (auth.Strategy, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: auth.%w", ErrInvalidConfig, err)
	}

	switch a.Type {
	case "", AuthNone:
		return nil, nil
	case AuthBearer:
		return &auth.Bearer{Token: a.Token}, nil
	case AuthBasic:
		return &auth.Basic{Username: a.Username, Password: a.Password}, nil
	case AuthAPIKey:
		return &auth.APIKey{Key: a.Key, Header: a.Header, Prefix: a.Prefix}, nil
	case AuthOAuth2:
		flowOpts := []auth.OAuth2Option{auth.WithLogger(opts.logger())}
		if store != nil {
			flowOpts = append(flowOpts, auth.WithStorage(store))
		}
		if a.ExpiryMargin > 0 {
			flowOpts = append(flowOpts, auth.WithExpiryMargin(a.ExpiryMargin))
		}
		if opts.TracerProvider != nil {
			flowOpts = append(flowOpts, auth.WithTracerProvider(opts.TracerProvider))
		}
		if opts.Registerer != nil {
			m, err := metrics.New(opts.Registerer)
			if err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
			flowOpts = append(flowOpts, auth.WithMetrics(m))
		}
		flow, err := auth.NewOAuth2Flow(auth.OAuth2Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			TokenURL:     a.TokenURL,
			Scope:        a.Scope,
			Tenant:       a.Tenant,
		}, flowOpts...)
		if err != nil {
			return nil, err
		}
		return flow, nil
	case AuthJWT:
		cfg := auth.JWTConfig{
			Algorithm: a.Algorithm,
			Secret:    []byte(a.Secret),
			KeyID:     a.KeyID,
			Issuer:    a.Issuer,
			Subject:   a.Subject,
			Audience:  a.Audience,
			TTL:       a.TTL,
			Claims:    a.Claims,
		}
		if a.PrivateKeyFile != "" {
			path, err := expandHome(a.PrivateKeyFile)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key: %w", err)
			}
			key, err := auth.ParsePrivateKeyPEM(a.Algorithm, data)
			if err != nil {
				return nil, err
			}
			cfg.PrivateKey = key
			cfg.Secret = nil
		}
		j, err := auth.NewJWT(cfg)
		if err != nil {
			return nil, err
		}
		return j, nil
	case AuthSigV4:
		s, err := auth.NewSigV4(ctx, auth.SigV4Config{
			Service:         a.Service,
			Region:          a.Region,
			AccessKeyID:     a.AccessKeyID,
			SecretAccessKey: a.SecretAccessKey,
			SessionToken:    a.SessionToken,
			Profile:         a.AWSProfile,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown auth type %q", ErrInvalidConfig, a.Type)
}

// BuildStorage opens the token storage selected by s.
func BuildStorage(s StorageConfig, logger *slog.Logger) (storage.TokenStorage, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: storage.%w", ErrInvalidConfig, err)
	}
	opts := []storage.Option{storage.WithLogger(logger)}

	switch s.Type {
	case "", StorageMemory:
		return storage.NewMemoryStorage(), nil
	case StorageEncryptedFile:
		path, err := expandHome(s.Path)
		if err != nil {
			return nil, err
		}
		f, err := storage.NewEncryptedFileStorage(path, s.Password, opts...)
		if err != nil {
			return nil, err
		}
		return f, nil
	case StorageRedis:
		rdb, err := storage.NewRedisClient(s.Redis)
		if err != nil {
			return nil, err
		}
		if s.KeyPrefix != "" {
			opts = append(opts, storage.WithKeyPrefix(s.KeyPrefix))
		}
		return storage.NewRedisStorage(rdb, opts...), nil
	case StorageKeychain:
		if s.Service != "" {
			opts = append(opts, storage.WithServiceName(s.Service))
		}
		return storage.NewKeychainStorage(opts...), nil
	case StorageSQLite:
		path, err := expandHome(s.Path)
		if err != nil {
			return nil, err
		}
		if path == "" {
			dir, err := DataDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get data directory: %w", err)
			}
			path = filepath.Join(dir, "tokens.db")
		}
		if s.Table != "" {
			opts = append(opts, storage.WithTable(s.Table))
		}
		db, err := storage.NewSQLiteStorage(path, opts...)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, s.Type)
}

// BuildRetry converts r into a strategy. A nil r disables retries.
func BuildRetry(r *RetryConfig) *retry.Strategy {
	if r == nil {
		return nil
	}
	def := retry.Default()
	st := &retry.Strategy{
		MaxRetries:      r.MaxRetries,
		BaseDelay:       r.BaseDelay,
		MaxDelay:        r.MaxDelay,
		ExponentialBase: r.ExponentialBase,
		Jitter:          r.Jitter,
	}
	if st.BaseDelay == 0 {
		st.BaseDelay = def.BaseDelay
	}
	if st.MaxDelay == 0 {
		st.MaxDelay = max(def.MaxDelay, st.BaseDelay)
	}
	if st.ExponentialBase == 0 {
		st.ExponentialBase = def.ExponentialBase
	}
	return st
}

// BuildLimiter builds the limiter selected by r.
func BuildLimiter(r *RateLimitConfig, logger *slog.Logger) (ratelimit.Limiter, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: rate_limit.%w", ErrInvalidConfig, err)
	}
	switch r.Type {
	case "", RateLimitFixed:
		return ratelimit.Fixed(r.RequestsPerSecond, r.Burst), nil
	case RateLimitAdaptive:
		return ratelimit.NewAdaptive(r.RequestsPerSecond).WithLogger(logger), nil
	case RateLimitMultiWindow:
		mw, err := ratelimit.NewMultiWindow(r.PerSecond, r.PerMinute, r.PerHour)
		if err != nil {
			return nil, err
		}
		return mw, nil
	}
	return nil, fmt.Errorf("%w: unknown rate limit type %q", ErrInvalidConfig, r.Type)
}
