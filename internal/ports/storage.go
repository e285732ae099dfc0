package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KeyValue.Get for absent keys.
var ErrKeyNotFound = errors.New("key not found")

// KeyValue is the durable key-value store behind the local order store.
// Implementations must make Set/Delete durable before returning so a crash
// or reload loses no confirmed order. Absence of a key is a valid state,
// reported as ErrKeyNotFound, not a failure.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
