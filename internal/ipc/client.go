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
)

// ErrClosed is returned by calls on a client whose stream has failed or
// been closed.
var ErrClosed = errors.New("ipc: client closed")

// Client implements biometrics.Biometrics against a Server. Calls are
// serialised on the stream. A call that fails mid-frame, including one
// whose context is cancelled, leaves the client closed.
type Client struct {
	rw io.ReadWriter

	mu     sync.Mutex
	nextID uint64
	err    error
}

var _ biometrics.Biometrics = (*Client)(nil)

// NewClient wraps an established stream.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

// Dial connects to a daemon listening on a unix socket.
func Dial(ctx context.Context, socket string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", socket, err)
	}
	return NewClient(conn), nil
}

// Close closes the underlying stream when it is closable.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = ErrClosed
	}
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) CanCheckPresence(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, Request{Op: biometrics.OpCanCheckPresence})
	if err != nil {
		return false, err
	}
	return resp.Available, nil
}

func (c *Client) CheckPresence(ctx context.Context, handle []byte, reason string) error {
	_, err := c.call(ctx, Request{Op: biometrics.OpCheckPresence, Handle: handle, Reason: reason})
	return err
}

func (c *Client) GetSecret(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.call(ctx, Request{Op: biometrics.OpGetSecret, Key: key})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return []byte{}, nil
	}
	return resp.Value, nil
}

func (c *Client) SetSecret(ctx context.Context, key string, data []byte) error {
	_, err := c.call(ctx, Request{Op: biometrics.OpSetSecret, Key: key, Value: data})
	return err
}

func (c *Client) DeleteSecret(ctx context.Context, key string) error {
	_, err := c.call(ctx, Request{Op: biometrics.OpDeleteSecret, Key: key})
	return err
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return Response{}, &biometrics.Error{Op: req.Op, Key: req.Key, Kind: biometrics.KindNotAvailable, Err: c.err}
	}
	if err := ctx.Err(); err != nil {
		return Response{}, &biometrics.Error{Op: req.Op, Key: req.Key, Kind: biometrics.KindUserCancelled, Err: err}
	}

	if d, ok := c.rw.(deadliner); ok {
		d.SetDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() { d.SetDeadline(time.Now()) })
		defer stop()
	}

	c.nextID++
	req.ID = c.nextID

	resp, err := c.roundTrip(req)
	if err != nil {
		c.err = err
		kind := biometrics.KindNotAvailable
		if ctx.Err() != nil {
			err = ctx.Err()
			kind = biometrics.KindUserCancelled
		}
		return Response{}, &biometrics.Error{Op: req.Op, Key: req.Key, Kind: kind, Err: err}
	}

	if resp.Error != nil {
		return resp, resp.Error.Err(req.Op, req.Key)
	}
	return resp, nil
}

func (c *Client) roundTrip(req Request) (Response, error) {
	if err := WriteFrame(c.rw, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := ReadFrame(c.rw, &resp); err != nil {
		if errors.Is(err, io.EOF) {
			return Response{}, io.ErrUnexpectedEOF
		}
		return Response{}, err
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("response id %d for request %d", resp.ID, req.ID)
	}
	return resp, nil
}
