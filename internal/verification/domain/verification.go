// Package domain holds the verification data model: challenge modes, challenges, external
// provider sessions, resolution outcomes and the closed error taxonomy.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Mode is the challenge type presented to an unverified user.
type Mode string

const (
	ModeMath     Mode = "math"
	ModeButton   Mode = "button"
	ModeExternal Mode = "tguard"
)

// TTLs for transient verification state.
const (
	MathChallengeTTL   = 5 * time.Minute
	ExternalSessionTTL = 10 * time.Minute
	VerifiedCacheTTL   = 30 * time.Minute
)

// Cache keys for per-user verification state.
func CaptchaKey(userID int64) string  { return "captcha_" + strconv.FormatInt(userID, 10) }
func SessionKey(userID int64) string  { return "tguard_token_" + strconv.FormatInt(userID, 10) }
func VerifiedKey(userID int64) string { return "verified_" + strconv.FormatInt(userID, 10) }

// ParseMode returns the Mode for s (case-insensitive). Unknown values are an
// InvalidConfiguration error; there is no fallback mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMath:
		return ModeMath, nil
	case ModeButton:
		return ModeButton, nil
	case ModeExternal:
		return ModeExternal, nil
	}
	return "", &Error{Kind: KindInvalidConfiguration, Op: "parse mode", Body: s, Err: ErrUnknownMode}
}

// Challenge is a transient proof-of-humanity task issued to one user. ExpectedAnswer and
// Prompt are set only for ModeMath.
type Challenge struct {
	UserID         int64
	Mode           Mode
	ExpectedAnswer string
	Prompt         string
	CreatedAt      time.Time
	TTL            time.Duration
}

// ExternalSession is a verification session created at the external provider.
type ExternalSession struct {
	UserID          int64         `json:"user_id"`
	Token           string        `json:"token"`
	VerificationURL string        `json:"verification_url"`
	CreatedAt       time.Time     `json:"created_at"`
	TTL             time.Duration `json:"ttl"`
}

// Status is the provider-reported state of an external session.
type Status int

const (
	StatusPending Status = iota
	StatusCompleted
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusNotFound:
		return "not_found"
	default:
		return "pending"
	}
}

// Resolution is the coordinator's outcome of reconciling an external session.
type Resolution int

const (
	ResolutionNoSession Resolution = iota
	ResolutionPending
	ResolutionVerified
	ResolutionExpired
)

func (r Resolution) String() string {
	switch r {
	case ResolutionPending:
		return "pending"
	case ResolutionVerified:
		return "verified"
	case ResolutionExpired:
		return "expired"
	default:
		return "no_session"
	}
}
