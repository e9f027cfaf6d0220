// Package presence asks the operating system to confirm that the user is
// physically present. One native verifier is compiled per GOOS:
// LocalAuthentication on macOS, Windows Hello on Windows and polkit on
// Linux. Other platforms get a verifier that is never available.
package presence

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means no presence hardware or service can be used.
	ErrUnavailable = errors.New("presence verification unavailable")
	// ErrNotConfigured means the hardware exists but the user never enrolled.
	ErrNotConfigured = errors.New("presence verification not configured")
	// ErrCancelled means the prompt was dismissed by the user, the system
	// or the caller's context.
	ErrCancelled = errors.New("presence verification cancelled")
	// ErrFailed means the user could not be verified.
	ErrFailed = errors.New("presence verification failed")
	// ErrLockedOut means too many failed attempts disabled the sensor.
	ErrLockedOut = errors.New("presence verification locked out")
	// ErrDenied means policy forbids verification for this caller.
	ErrDenied = errors.New("presence verification denied by policy")
	// ErrInvalidHandle means the window handle could not be decoded.
	ErrInvalidHandle = errors.New("invalid presence handle")
)

// Verifier prompts for presence. Available must never show a prompt.
type Verifier interface {
	Available(ctx context.Context) (bool, error)
	Verify(ctx context.Context, handle []byte, reason string) error
}

// Options tune the native verifiers. Each platform reads only its field.
type Options struct {
	// PolkitAction is the polkit action checked on Linux.
	PolkitAction string
	// AllowDevicePasscode lets macOS fall back to the account password
	// when biometry is unavailable or fails.
	AllowDevicePasscode bool
}

// New returns the verifier compiled for this platform.
func New(opts Options) Verifier { return newPlatform(opts) }
