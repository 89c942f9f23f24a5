package repository

import (
	"context"
)

// Repository is the authoritative store of verified users. Writes are durable before return.
type Repository interface {
	// IsVerified reports whether userID has a verified record.
	IsVerified(ctx context.Context, userID int64) (bool, error)
	// MarkVerified records userID as verified. Idempotent.
	MarkVerified(ctx context.Context, userID int64) error
	// Revoke removes userID's record. No-op when the user was never verified.
	Revoke(ctx context.Context, userID int64) error
	// Count returns the number of verified users.
	Count(ctx context.Context) (int, error)
}
