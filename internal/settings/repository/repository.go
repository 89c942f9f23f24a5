package repository

import "context"

// Repository defines persistence for operator settings.
type Repository interface {
	// Get returns the value for key. ok is false when the row is missing or its value is NULL.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set upserts key with value.
	Set(ctx context.Context, key, value string) error
}
