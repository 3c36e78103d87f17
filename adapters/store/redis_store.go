package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/tollgate/core"
	"github.com/redis/go-redis/v9"
)

// expiredMarker replaces the value of a nonce key once the nonce expired
const expiredMarker = "expired"

// consumeScript is GETDEL that leaves expired markers in place
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return false end
if v ~= ARGV[1] then redis.call('DEL', KEYS[1]) end
return v
`)

// RedisNonceStore is a Redis implementation of the NonceStore interface.
// Keys outlive the record's expiry by a grace period so that a late verify
// still finds the record and reports it as expired rather than unknown.
type RedisNonceStore struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client redis.UniversalClient) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "tollgate:nonce:",
		grace:  10 * time.Minute,
	}
}

// Put stores the record. Nonces are random, so an existing key means a bug
// upstream and is reported instead of overwritten.
func (s *RedisNonceStore) Put(ctx context.Context, record *core.NonceRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal nonce: %w", err)
	}

	ttl := time.Until(record.ExpiresAt) + s.grace
	ok, err := s.client.SetNX(ctx, s.prefix+record.Nonce, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to store nonce: %v", core.ErrStoreOperationFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: nonce already exists", core.ErrStoreOperationFailed)
	}

	return nil
}

// Get loads the record without consuming it
func (s *RedisNonceStore) Get(ctx context.Context, nonce string) (*core.NonceRecord, error) {
	raw, err := s.client.Get(ctx, s.prefix+nonce).Bytes()
	return s.decode(raw, err)
}

// Consume removes the record atomically so only one caller can win it
func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (*core.NonceRecord, error) {
	raw, err := consumeScript.Run(ctx, s.client, []string{s.prefix + nonce}, expiredMarker).Text()
	return s.decode([]byte(raw), err)
}

// Expire overwrites the record with a marker kept for the grace period
func (s *RedisNonceStore) Expire(ctx context.Context, nonce string) error {
	if err := s.client.Set(ctx, s.prefix+nonce, expiredMarker, s.grace).Err(); err != nil {
		return fmt.Errorf("%w: failed to expire nonce: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Delete removes the record if present
func (s *RedisNonceStore) Delete(ctx context.Context, nonce string) error {
	if err := s.client.Del(ctx, s.prefix+nonce).Err(); err != nil {
		return fmt.Errorf("%w: failed to delete nonce: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

func (s *RedisNonceStore) decode(raw []byte, err error) (*core.NonceRecord, error) {
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrNonceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load nonce: %v", core.ErrStoreOperationFailed, err)
	}
	if string(raw) == expiredMarker {
		return nil, core.ErrNonceExpired
	}

	var record core.NonceRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: corrupt nonce record: %v", core.ErrStoreOperationFailed, err)
	}
	return &record, nil
}
