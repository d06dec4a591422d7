// Package cache holds the Redis-backed order read cache and the idempotency
// keys guarding order creation. Callers treat every cache error as a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyOrder          = "storefront:order:%s"
	keyOrderGen       = "storefront:order:gen:%s"
	keyIdemCreate     = "storefront:idem:order:create:%s:%s"
	idempotentPending = "pending"
)

// OrderCache stores full order views by id. Every Invalidate bumps the
// order's generation; Set only writes when the generation still matches the
// one Get returned, so a read that raced a write cannot repopulate stale data.
type OrderCache interface {
	// Get returns a nil order on a miss, plus the generation to hand to Set.
	Get(ctx context.Context, id uuid.UUID) (*model.Order, int64, error)
	Set(ctx context.Context, order *model.Order, gen int64) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// IdempotencyStore deduplicates order creation per user and client key.
type IdempotencyStore interface {
	// Reserve claims the key. When the key is already taken it returns
	// reserved=false and the order id of a finished request, or "" while the
	// first request is still running.
	Reserve(ctx context.Context, userID uuid.UUID, key string) (orderID string, reserved bool, err error)

	// Complete stores the created order id under the key.
	Complete(ctx context.Context, userID uuid.UUID, key string, orderID uuid.UUID) error

	// Release frees the key after a failed request so the client may retry.
	Release(ctx context.Context, userID uuid.UUID, key string) error
}

// NewClient creates a Redis client and checks the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("redis connection established")
	return client, nil
}

// setIfGeneration writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type redisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOrderCache creates an OrderCache whose entries live for ttl.
func NewRedisOrderCache(client *redis.Client, ttl time.Duration) OrderCache {
	return &redisOrderCache{client: client, ttl: ttl}
}

func (c *redisOrderCache) Get(ctx context.Context, id uuid.UUID) (*model.Order, int64, error) {
	vals, err := c.client.MGet(ctx, fmt.Sprintf(keyOrder, id), fmt.Sprintf(keyOrderGen, id)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read cached order: %w", err)
	}

	var gen int64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("failed to parse order generation: %w", err)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, nil
	}
	var order model.Order
	if err := json.Unmarshal([]byte(raw), &order); err != nil {
		return nil, gen, fmt.Errorf("failed to decode cached order: %w", err)
	}
	return &order, gen, nil
}

func (c *redisOrderCache) Set(ctx context.Context, order *model.Order, gen int64) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}
	keys := []string{fmt.Sprintf(keyOrder, order.ID), fmt.Sprintf(keyOrderGen, order.ID)}
	return setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Err()
}

func (c *redisOrderCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	genKey := fmt.Sprintf(keyOrderGen, id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		// Outlive any entry written under the previous generation.
		pipe.Expire(ctx, genKey, 2*c.ttl)
		pipe.Del(ctx, fmt.Sprintf(keyOrder, id))
		return nil
	})
	return err
}

// keyValue is the subset of *redis.Client the idempotency store needs.
type keyValue interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisIdempotencyStore struct {
	client keyValue
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates an IdempotencyStore whose keys live for ttl.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) IdempotencyStore {
	return &redisIdempotencyStore{client: client, ttl: ttl}
}

// reserveAttempts bounds the SETNX/GET loop when the key keeps expiring in between.
const reserveAttempts = 2

func (s *redisIdempotencyStore) Reserve(ctx context.Context, userID uuid.UUID, key string) (string, bool, error) {
	k := fmt.Sprintf(keyIdemCreate, userID, key)

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, k, idempotentPending, s.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("failed to reserve idempotency key: %w", err)
		}
		if ok {
			return "", true, nil
		}

		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to read idempotency key: %w", err)
		}
		if val == idempotentPending {
			return "", false, nil
		}
		return val, false, nil
	}
	return "", false, fmt.Errorf("idempotency key %s kept expiring during reservation", key)
}

func (s *redisIdempotencyStore) Complete(ctx context.Context, userID uuid.UUID, key string, orderID uuid.UUID) error {
	return s.client.Set(ctx, fmt.Sprintf(keyIdemCreate, userID, key), orderID.String(), s.ttl).Err()
}

func (s *redisIdempotencyStore) Release(ctx context.Context, userID uuid.UUID, key string) error {
	return s.client.Del(ctx, fmt.Sprintf(keyIdemCreate, userID, key)).Err()
}

// NopOrderCache never holds anything.
type NopOrderCache struct{}

func (NopOrderCache) Get(context.Context, uuid.UUID) (*model.Order, int64, error) { return nil, 0, nil }
func (NopOrderCache) Set(context.Context, *model.Order, int64) error              { return nil }
func (NopOrderCache) Invalidate(context.Context, uuid.UUID) error                 { return nil }

// NopIdempotencyStore grants every reservation.
type NopIdempotencyStore struct{}

func (NopIdempotencyStore) Reserve(context.Context, uuid.UUID, string) (string, bool, error) {
	return "", true, nil
}
func (NopIdempotencyStore) Complete(context.Context, uuid.UUID, string, uuid.UUID) error { return nil }
func (NopIdempotencyStore) Release(context.Context, uuid.UUID, string) error             { return nil }
