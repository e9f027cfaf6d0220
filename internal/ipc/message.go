package ipc

import (
	"errors"

	"github.com/n1/biovault/internal/biometrics"
)

// Request is one capability call. Op is one of the biometrics.Op* names.
// Byte fields travel as standard base64.
type Request struct {
	ID     uint64 `json:"id"`
	Op     string `json:"op"`
	Key    string `json:"key,omitempty"`
	Value  []byte `json:"value,omitempty"`
	Handle []byte `json:"handle,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID        uint64     `json:"id"`
	OK        bool       `json:"ok"`
	Available bool       `json:"available,omitempty"`
	Value     []byte     `json:"value,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the wire form of a *biometrics.Error.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

func errorBody(err error) *ErrorBody {
	body := &ErrorBody{Kind: biometrics.KindOf(err).String(), Message: err.Error()}
	var e *biometrics.Error
	if errors.As(err, &e) {
		body.Message = ""
		if e.Err != nil {
			body.Message = e.Err.Error()
		}
	}
	return body
}

// Err rebuilds the error carried by a failed response.
func (b *ErrorBody) Err(op, key string) error {
	e := &biometrics.Error{Op: op, Key: key, Kind: biometrics.ParseKind(b.Kind)}
	if b.Message != "" {
		e.Err = errors.New(b.Message)
	}
	return e
}
