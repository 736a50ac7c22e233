package cursor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lakeseed/lakeseed/pkg/errors"
)

// RedisConfig configures the Redis cursor backend.
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string

	// Password for authentication (empty = no auth)
	Password string

	// Database number to use
	Database int

	// Key under which the cursor date is stored
	Key string

	// Timeout for operations
	Timeout time.Duration

	// PoolSize is the connection pool size
	PoolSize int

	// MinIdleConns is the minimum idle connections
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:      "localhost:6379",
		Database:     0,
		Key:          "lakeseed:cursor",
		Timeout:      5 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	}
}

// RedisStore keeps the cursor as a single Redis string key. It shares
// the forward-only contract of the file store; the key has no TTL
// because the cursor is durable state.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
	epoch  time.Time
}

// NewRedisStore creates a Redis-backed cursor store and verifies
// connectivity with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Key == "" {
		cfg.Key = "lakeseed:cursor"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.CodeCursorRead, "failed to connect to redis").
			WithContext("address", cfg.Address)
	}

	return &RedisStore{client: client, cfg: cfg, epoch: Epoch}, nil
}

// SetEpoch overrides the date returned when no cursor exists.
func (s *RedisStore) SetEpoch(epoch time.Time) *RedisStore {
	s.epoch = Normalize(epoch)
	return s
}

// Name returns the backend name.
func (s *RedisStore) Name() string {
	return "redis"
}

// Read returns the stored date, or the epoch when the key is absent.
func (s *RedisStore) Read(ctx context.Context) (time.Time, error) {
	val, err := s.client.Get(ctx, s.cfg.Key).Result()
	if err == redis.Nil {
		return s.epoch, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.CodeCursorRead, "failed to read cursor key").
			WithContext("key", s.cfg.Key)
	}

	date, perr := ParseDate(val)
	if perr != nil {
		return time.Time{}, errors.Wrap(perr, errors.CodeCursorRead, "cursor key is corrupt").
			WithContext("key", s.cfg.Key)
	}
	return date, nil
}

// Advance overwrites the cursor, rejecting backward movement.
func (s *RedisStore) Advance(ctx context.Context, date time.Time) error {
	date = Normalize(date)

	current, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if date.Before(current) {
		return errors.CursorRegressed(FormatDate(current), FormatDate(date))
	}

	return s.set(ctx, date)
}

// Set overwrites the cursor unconditionally (operator use).
func (s *RedisStore) Set(ctx context.Context, date time.Time) error {
	return s.set(ctx, Normalize(date))
}

// Reset deletes the cursor key.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.cfg.Key).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to reset cursor key").
			WithContext("key", s.cfg.Key)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) set(ctx context.Context, date time.Time) error {
	if err := s.client.Set(ctx, s.cfg.Key, FormatDate(date), 0).Err(); err != nil {
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to write cursor key").
			WithContext("key", s.cfg.Key)
	}
	return nil
}

// Verify interface compliance
var _ Store = (*RedisStore)(nil)
