//go:build !linux && !windows && !(darwin && cgo)

package presence

import "context"

type unsupportedVerifier struct{}

func newPlatform(Options) Verifier { return unsupportedVerifier{} }

func (unsupportedVerifier) Available(context.Context) (bool, error) { return false, nil }

func (unsupportedVerifier) Verify(context.Context, []byte, string) error { return ErrUnavailable }
