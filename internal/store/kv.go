// Package store is the persistent aggregate shared by every browsing context.
// All writes go through per-key compare-and-swap so concurrent writers never
// lose updates.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vthunder/diner/internal/logging"
)

var (
	ErrNotFound  = errors.New("key not found")
	ErrUnchanged = errors.New("value unchanged")
)

// KV is a key-value store with per-key versions.
// A missing key has version 0; every successful write increments it.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, version int64, err error)
	// CompareAndSwap writes value only if the key is still at version.
	// Version 0 means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error)
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Update performs an atomic read-modify-write on key. fn receives the current
// value (nil if missing) and returns the replacement; returning ErrUnchanged
// skips the write. Conflicts are retried until ctx is done.
func Update(ctx context.Context, kv KV, key string, fn func(old []byte, exists bool) ([]byte, error)) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		old, version, err := kv.Get(ctx, key)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists, version, old = false, 0, nil
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}

		next, err := fn(old, exists)
		if errors.Is(err, ErrUnchanged) {
			return old, nil
		}
		if err != nil {
			return nil, err
		}

		ok, err := kv.CompareAndSwap(ctx, key, version, next)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", key, err)
		}
		if ok {
			return next, nil
		}
		if attempt > 0 && attempt%100 == 0 {
			logging.Debug("store", "key %s still contended after %d attempts", key, attempt)
		}
	}
}

// GetJSON decodes key into T. found is false for missing or null values.
func GetJSON[T any](ctx context.Context, kv KV, key string) (value T, found bool, err error) {
	raw, _, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("read %s: %w", key, err)
	}
	if isNull(raw) {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, true, nil
}

// UpdateJSON is Update over a JSON-encoded T
func UpdateJSON[T any](ctx context.Context, kv KV, key string, fn func(cur T, exists bool) (T, error)) (T, error) {
	var out T
	_, err := Update(ctx, kv, key, func(raw []byte, exists bool) ([]byte, error) {
		var cur T
		if exists && !isNull(raw) {
			if err := json.Unmarshal(raw, &cur); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
		} else {
			exists = false
		}

		out = cur
		next, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		out = next
		return json.Marshal(next)
	})
	return out, err
}

// PutJSON overwrites key with value
func PutJSON[T any](ctx context.Context, kv KV, key string, value T) error {
	_, err := UpdateJSON(ctx, kv, key, func(T, bool) (T, error) { return value, nil })
	return err
}

// Clear replaces key with a JSON null, keeping its version history
func Clear(ctx context.Context, kv KV, key string) error {
	_, err := Update(ctx, kv, key, func(old []byte, exists bool) ([]byte, error) {
		if !exists || isNull(old) {
			return nil, ErrUnchanged
		}
		return []byte("null"), nil
	})
	return err
}

// InitJSON writes value only if key has never been written
func InitJSON[T any](ctx context.Context, kv KV, key string, value T) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	return kv.CompareAndSwap(ctx, key, 0, raw)
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
