package biometrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/n1/biovault/internal/presence"
	"github.com/n1/biovault/internal/secretstore"
)

// Kind classifies why an operation failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotAvailable
	KindUserCancelled
	KindAuthFailed
	KindAccessDenied
	KindNotFound
	KindStorageUnavailable
	KindInvalidKey
	KindInvalidArgument
	KindTooLarge
	KindLockedOut
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotAvailable:       "not_available",
	KindUserCancelled:      "user_cancelled",
	KindAuthFailed:         "auth_failed",
	KindAccessDenied:       "access_denied",
	KindNotFound:           "not_found",
	KindStorageUnavailable: "storage_unavailable",
	KindInvalidKey:         "invalid_key",
	KindInvalidArgument:    "invalid_argument",
	KindTooLarge:           "too_large",
	KindLockedOut:          "locked_out",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String; unknown names map to KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// Sentinels for errors.Is; an *Error matches the sentinel of its kind.
var (
	ErrNotAvailable       = &Error{Kind: KindNotAvailable}
	ErrUserCancelled      = &Error{Kind: KindUserCancelled}
	ErrAuthFailed         = &Error{Kind: KindAuthFailed}
	ErrAccessDenied       = &Error{Kind: KindAccessDenied}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrInvalidKey         = &Error{Kind: KindInvalidKey}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrTooLarge           = &Error{Kind: KindTooLarge}
	ErrLockedOut          = &Error{Kind: KindLockedOut}
)

// Error is returned by every Biometrics operation.
type Error struct {
	Op   string
	Key  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key %q)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels compare by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// wrap translates a store or verifier error into an *Error.
func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Key: key, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindUserCancelled
	case errors.Is(err, presence.ErrCancelled):
		return KindUserCancelled
	case errors.Is(err, presence.ErrUnavailable), errors.Is(err, presence.ErrNotConfigured):
		return KindNotAvailable
	case errors.Is(err, presence.ErrFailed):
		return KindAuthFailed
	case errors.Is(err, presence.ErrLockedOut):
		return KindLockedOut
	case errors.Is(err, presence.ErrDenied):
		return KindAccessDenied
	case errors.Is(err, presence.ErrInvalidHandle):
		return KindInvalidArgument
	case errors.Is(err, secretstore.ErrNotFound):
		return KindNotFound
	case errors.Is(err, secretstore.ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, secretstore.ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, secretstore.ErrUnavailable):
		return KindStorageUnavailable
	default:
		return KindUnknown
	}
}
