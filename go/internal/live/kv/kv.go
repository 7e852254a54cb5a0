// Package kv is the durable per-session storage shared by every runtime
// instance of a session: the runtime snapshot and the control lock live here.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: not found")

// Store is a flat key/value store with whole-value replace semantics.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// RuntimeKey is where a session's runtime snapshot is persisted.
func RuntimeKey(sessionID string) string {
	return "live:runtime:" + sessionID
}

// LockKey is where a session's control lock is persisted.
func LockKey(sessionID string) string {
	return "live:lock:" + sessionID
}
