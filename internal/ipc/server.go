package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/log"
	"github.com/rs/zerolog"
)

// Server answers capability requests from framed streams.
type Server struct {
	bio    biometrics.Biometrics
	logger zerolog.Logger

	// PresenceTimeout bounds a single check_presence prompt; zero means
	// only the connection context applies.
	PresenceTimeout time.Duration
}

// NewServer serves bio.
func NewServer(bio biometrics.Biometrics) *Server {
	return &Server{bio: bio, logger: log.With("ipc")}
}

// ServeConn answers requests on rw one at a time until the stream ends or
// ctx is done. When rw is an io.Closer it is closed on cancellation so a
// blocked read returns.
func (s *Server) ServeConn(ctx context.Context, rw io.ReadWriter) error {
	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	for {
		var req Request
		err := ReadFrame(rw, &req)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrMalformed):
			s.logger.Warn().Err(err).Msg("Rejecting malformed request")
			resp := Response{Error: &ErrorBody{Kind: biometrics.KindInvalidArgument.String(), Message: err.Error()}}
			if err := WriteFrame(rw, resp); err != nil {
				return err
			}
			continue
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		resp := s.Handle(ctx, req)
		if err := WriteFrame(rw, resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Serve accepts connections until ctx is done, serving each on its own
// goroutine. It returns after every connection has finished; connections
// are closed when Serve stops accepting.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			if err := s.ServeConn(ctx, conn); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("Connection closed with error")
			}
		}()
	}
}

// Handle runs a single request against the capability.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	s.logger.Debug().Uint64("id", req.ID).Str("op", req.Op).Msg("Request")

	var err error
	switch req.Op {
	case biometrics.OpCanCheckPresence:
		resp.Available, err = s.bio.CanCheckPresence(ctx)
	case biometrics.OpCheckPresence:
		pctx := ctx
		if s.PresenceTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, s.PresenceTimeout)
			defer cancel()
		}
		err = s.bio.CheckPresence(pctx, req.Handle, req.Reason)
	case biometrics.OpGetSecret:
		resp.Value, err = s.bio.GetSecret(ctx, req.Key)
	case biometrics.OpSetSecret:
		err = s.bio.SetSecret(ctx, req.Key, req.Value)
	case biometrics.OpDeleteSecret:
		err = s.bio.DeleteSecret(ctx, req.Key)
	default:
		err = &biometrics.Error{Op: req.Op, Kind: biometrics.KindInvalidArgument, Err: fmt.Errorf("unknown operation %q", req.Op)}
	}

	if err != nil {
		resp.Error = errorBody(err)
		return resp
	}
	resp.OK = true
	return resp
}
