package domain

import "time"

// VerifiedUser is the durable record that a user completed verification (verified_users table).
type VerifiedUser struct {
	UserID     int64     `json:"user_id"`
	VerifiedAt time.Time `json:"verified_at"`
}
