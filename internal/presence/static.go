package presence

import (
	"context"
	"sync/atomic"
)

// Static answers every request with a fixed result. It backs the memory
// backend and tests; it never shows a prompt.
type Static struct {
	available bool
	result    error

	probes  atomic.Int64
	prompts atomic.Int64
}

// NewStatic returns a verifier that reports available and answers Verify
// with result (nil meaning verified).
func NewStatic(available bool, result error) *Static {
	return &Static{available: available, result: result}
}

func (s *Static) Available(ctx context.Context) (bool, error) {
	s.probes.Add(1)
	return s.available, nil
}

func (s *Static) Verify(ctx context.Context, handle []byte, reason string) error {
	s.prompts.Add(1)
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if !s.available {
		return ErrUnavailable
	}
	return s.result
}

// Probes returns how many times Available was called.
func (s *Static) Probes() int64 { return s.probes.Load() }

// Prompts returns how many times Verify was called.
func (s *Static) Prompts() int64 { return s.prompts.Load() }
