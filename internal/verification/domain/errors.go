package domain

import (
	"errors"
	"fmt"
)

// Kind classifies verification failures. The set is closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidConfiguration
	KindProviderError
	KindInvalidProviderResponse
	KindTransportFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindProviderError:
		return "provider_error"
	case KindInvalidProviderResponse:
		return "invalid_provider_response"
	case KindTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrInvalidConfiguration    = &Error{Kind: KindInvalidConfiguration}
	ErrProviderError           = &Error{Kind: KindProviderError}
	ErrInvalidProviderResponse = &Error{Kind: KindInvalidProviderResponse}
	ErrTransportFailure        = &Error{Kind: KindTransportFailure}
)

// Causes wrapped inside classified errors.
var (
	ErrUnknownMode   = errors.New("unknown captcha mode")
	ErrNotConfigured = errors.New("tguard api url or key not configured")
)

// UserMessage is the only failure text shown to end users.
const UserMessage = "Verification is not available right now, please try again later."

// Error is a classified verification failure. StatusCode and Body are set for provider
// HTTP failures.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d body=%s", e.StatusCode, e.Body)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a classified error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first classified error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
