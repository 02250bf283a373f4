// Package storage persists the relay's durable documents (users, sessions,
// messages) as opaque byte blobs addressed by key.
//
// Every backend replaces a whole document atomically: a concurrent Load sees
// either the previous or the new value, never a partial write. Callers
// serialize their own read-modify-write cycles.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store is the persistence boundary used by the durable stores.
type Store interface {
	// Load returns the document stored under key, or common.ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save atomically replaces the document stored under key.
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// validateKey keeps keys usable as file names and object-key suffixes.
func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
