package store

import (
	"context"
	"errors"
)

var (
	// ErrStorageUnavailable indicates the device storage could not be opened or written.
	ErrStorageUnavailable = errors.New("identity storage unavailable")
	// ErrNotFound indicates no value exists for the requested key.
	ErrNotFound = errors.New("identity record not found")
)

// KV is the durable key-value contract the identity store is built on.
// Get returns ErrNotFound for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
