package model

import "context"

// KVStore is a durable key/value holder for client state.
// Get returns ErrNotFound for absent keys; Delete of an absent key is not an error.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
