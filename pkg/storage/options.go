package storage

import (
	"log/slog"
	"time"
)

type options struct {
	logger      *slog.Logger
	prefix      string
	service     string
	table       string
	lockTimeout time.Duration
}

// Option customises a storage backend.
type Option func(*options)

// WithLogger sets the logger used for degraded reads and swallowed errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithServiceName sets the keyring service name.
func WithServiceName(service string) Option {
	return func(o *options) { o.service = service }
}

// WithTable sets the SQLite table name.
func WithTable(table string) Option {
	return func(o *options) { o.table = table }
}

// WithLockTimeout bounds how long the encrypted file backend waits for the
// cross-process lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		prefix:      DefaultRedisPrefix,
		service:     DefaultKeychainService,
		table:       DefaultSQLiteTable,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
