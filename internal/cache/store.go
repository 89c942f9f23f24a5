// Package cache provides the ephemeral TTL key-value store used for pending challenges,
// provider sessions, settings projections and the verified-flag projection.
package cache

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// ErrInvalidTTL is returned by Set when ttl is not positive. Every entry must expire.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Store is a string key-value store with per-entry expiry. A missing, expired or evicted
// entry are indistinguishable: Get returns ok false for all of them.
type Store interface {
	// Set stores value under key for ttl, replacing any previous entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value for key if present and not expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, string(b), ttl)
}

// GetJSON loads key into v. ok is false when the key is absent; an undecodable value is an error.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := jsoniter.UnmarshalFromString(raw, v); err != nil {
		return false, err
	}
	return true, nil
}
