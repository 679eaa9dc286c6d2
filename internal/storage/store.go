// Package storage persists small JSON state blobs with a single backup
// generation. Credential, cooldown and sell-floor state all go through it.
package storage

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("storage: not found")

// Store is a durable blob store. Save replaces the primary atomically and
// keeps the replaced value as the backup. Load falls back to the backup when
// the primary is unreadable and re-persists it as the new primary.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Backup(ctx context.Context, key string) error
	Restore(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
