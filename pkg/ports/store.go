package ports

import (
	"context"
)

// StateBackend defines the storage behind the shared state manager.
// Backends only store values; subscriptions and notification ordering are
// owned by the manager.
type StateBackend interface {
	// Load returns the value stored under key.
	// Returns domain.ErrUnknownKey if the key does not exist.
	Load(ctx context.Context, key string) (any, error)

	// Store writes value under key, overwriting any previous value.
	Store(ctx context.Context, key string, value any) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists the stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
}
