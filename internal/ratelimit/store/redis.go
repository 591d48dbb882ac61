package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgegate/edgegate/internal/observability"
)

// incrementScript atomically increments a key and sets its expiration
// when the key is created by this call.
// KEYS[1] = key, ARGV[1] = delta, ARGV[2] = expiration in seconds.
var incrementScript = redis.NewScript(`
	local current = redis.call('INCRBY', KEYS[1], ARGV[1])
	if current == tonumber(ARGV[1]) then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return current
`)

// takeBucketScript refills a token bucket from elapsed time and takes
// the requested tokens in one atomic step. Token counts are kept in
// millitokens so fractional refill survives integer storage; the rate
// in tokens per second equals millitokens per millisecond, so the
// refill is simply elapsed_ms * rate.
// KEYS[1] = tokens key, KEYS[2] = last update key.
// ARGV[1] = rate (tokens/sec), ARGV[2] = burst, ARGV[3] = tokens
// requested, ARGV[4] = now in unix ms, ARGV[5] = expiration in seconds.
var takeBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1]
	local time_key = KEYS[2]
	local rate = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2]) * 1000
	local requested = tonumber(ARGV[3]) * 1000
	local now_ms = tonumber(ARGV[4])
	local ttl = tonumber(ARGV[5])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last = tonumber(redis.call('GET', time_key))
	if tokens == nil then
		tokens = capacity
	end
	if last == nil then
		last = now_ms
	end

	tokens = tokens + (now_ms - last) * rate
	if tokens > capacity then
		tokens = capacity
	end

	local allowed = 0
	if tokens >= requested then
		tokens = tokens - requested
		allowed = 1
	end

	redis.call('SET', tokens_key, math.floor(tokens), 'EX', ttl)
	redis.call('SET', time_key, now_ms, 'EX', ttl)

	return {allowed, math.floor(tokens)}
`)

// RedisStore implements Store using Redis, sharing rate limit state
// across gateway instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
}

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger observability.Logger
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Address:      "localhost:6379",
		Prefix:       "ratelimit:",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisStore creates a Redis store and verifies connectivity.
func NewRedisStore(addr, password string, db int, prefix string) (*RedisStore, error) {
	cfg := DefaultRedisConfig()
	cfg.Address = addr
	cfg.Password = password
	cfg.DB = db
	if prefix != "" {
		cfg.Prefix = prefix
	}
	return NewRedisStoreWithConfig(cfg)
}

// NewRedisStoreWithConfig creates a Redis store with custom configuration.
func NewRedisStoreWithConfig(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-integer value for key %s: %w", key, err)
	}
	return n, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, expiration).Err()
}

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	seconds := int64(expiration.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	result, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, delta, seconds).Int64()
	if err != nil {
		return 0, err
	}
	return result, nil
}

// TakeBucket implements Store.
func (s *RedisStore) TakeBucket(ctx context.Context, key string, rate float64, burst, n int, expiration time.Duration) (bool, float64, error) {
	seconds := int64(expiration.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	keys := []string{s.prefix + key + ":tokens", s.prefix + key + ":time"}
	res, err := takeBucketScript.Run(ctx, s.client, keys,
		rate, burst, n, time.Now().UnixMilli(), seconds).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected bucket script reply of length %d", len(res))
	}

	return res[0] == 1, float64(res[1]) / 1000, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
