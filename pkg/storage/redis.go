package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	apierrors "github.com/tombee/apiclient/pkg/errors"
)

const (
	// DefaultRedisPrefix namespaces token keys in a shared Redis database.
	DefaultRedisPrefix = "apiclient:tokens:"

	redisBackendName = "redis"
	redisScanCount   = 100
	redisTTLFactor   = 1.1
)

// RedisConfig holds connection settings for NewRedisClient.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(cfg *RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if cfg.Address == "" {
		cfg.Address = "localhost:6379"
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisStorage stores each record as a JSON string under prefix+key.
// Records with an ExpiresIn get a TTL slightly longer than the token lifetime
// so Redis evicts them on its own.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisStorage wraps an existing client. The storage does not own the
// client unless Close is called.
func NewRedisStorage(client redis.UniversalClient, opts ...Option) *RedisStorage {
	o := buildOptions(opts)
	return &RedisStorage{
		client: client,
		prefix: o.prefix,
		logger: o.logger,
	}
}

func (r *RedisStorage) key(key string) string {
	return r.prefix + key
}

// Store implements TokenStorage.
func (r *RedisStorage) Store(ctx context.Context, key string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &apierrors.StorageError{Backend: redisBackendName, Op: "encode", Key: key, Cause: err}
	}

	var ttl time.Duration
	if rec != nil && rec.ExpiresIn > 0 {
		ttl = time.Duration(float64(rec.ExpiresIn) * redisTTLFactor * float64(time.Second))
	}

	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return &apierrors.StorageError{Backend: redisBackendName, Op: "write", Key: key, Cause: err}
	}
	return nil
}

// Get implements TokenStorage. A value that does not decode is deleted.
func (r *RedisStorage) Get(ctx context.Context, key string) (*Record, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		return degrade(r.logger, redisBackendName, "read", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		if delErr := r.client.Del(ctx, r.key(key)).Err(); delErr != nil {
			r.logger.Debug("failed to delete corrupt token record", slog.String("key", key), slog.Any("error", delErr))
		}
		return degrade(r.logger, redisBackendName, "decode", key, err)
	}
	return &rec, true
}

// Delete implements TokenStorage.
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return &apierrors.StorageError{Backend: redisBackendName, Op: "delete", Key: key, Cause: err}
	}
	return nil
}

// ClearAll deletes every key under the prefix.
func (r *RedisStorage) ClearAll(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil {
		return &apierrors.StorageError{Backend: redisBackendName, Op: "scan", Cause: err}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return &apierrors.StorageError{Backend: redisBackendName, Op: "clear", Cause: err}
	}
	return nil
}

// Keys returns the stored keys without the prefix.
func (r *RedisStorage) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.scan(ctx)
	if err != nil {
		return nil, &apierrors.StorageError{Backend: redisBackendName, Op: "scan", Cause: err}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, r.prefix))
	}
	return out, nil
}

// TTL returns the remaining lifetime of a record. The boolean is false when
// the key is missing or has no expiry.
func (r *RedisStorage) TTL(ctx context.Context, key string) (time.Duration, bool) {
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil || ttl < 0 {
		return 0, false
	}
	return ttl, true
}

// ExtendTTL sets a new expiry on an existing record. It reports false when
// the key does not exist.
func (r *RedisStorage) ExtendTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.Expire(ctx, r.key(key), ttl).Result()
	if err != nil {
		return false, &apierrors.StorageError{Backend: redisBackendName, Op: "expire", Key: key, Cause: err}
	}
	return ok, nil
}

// Close closes the underlying client.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (r *RedisStorage) scan(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", redisScanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
