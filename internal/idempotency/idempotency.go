// Package idempotency deduplicates order creation. A retried checkout (flaky
// mobile network, double tap) must not place two orders, so the first request
// claims a Redis key and replays return the order it produced.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyTTL = 24 * time.Hour

// ErrInFlight marks a key claimed by a checkout that has not finished yet.
// The client retries once the first attempt completes or releases the key.
var ErrInFlight = errors.New("checkout already in progress")

// keyCommands is the slice of redis used here; *redis.Client satisfies it.
type keyCommands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Store struct {
	client keyCommands
}

func NewStore(addr string) *Store {
	if addr == "" {
		return nil
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// RequestHash derives a key from the caller identity and request body when no
// explicit Idempotency-Key header was sent.
func RequestHash(method, path, userID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + ":" + path + ":" + userID + ":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Claim marks the key as in flight. It returns the previously stored order id
// when the key already produced one, and ErrInFlight while the first attempt
// is still running, so a concurrent duplicate cannot place a second order.
func (s *Store) Claim(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", nil
	}
	ok, err := s.client.SetNX(ctx, "idem:"+key, "pending", keyTTL).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return "", nil
	}
	existing, err := s.client.Get(ctx, "idem:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if existing == "pending" {
		return "", ErrInFlight
	}
	return existing, nil
}

// Complete stores the created order id so replays can return it.
func (s *Store) Complete(ctx context.Context, key, orderID string) error {
	if s == nil {
		return nil
	}
	return s.client.Set(ctx, "idem:"+key, orderID, keyTTL).Err()
}

// Release frees the key after a failed creation so the client may retry.
func (s *Store) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, "idem:"+key).Err()
}
