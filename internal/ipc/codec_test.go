package ipc

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Request{ID: 1, Op: "get_secret", Key: "k"}))

	raw := buf.Bytes()
	n := binary.LittleEndian.Uint32(raw[:4])
	assert.Equal(t, int(n), len(raw)-4)
	assert.JSONEq(t, `{"id":1,"op":"get_secret","key":"k"}`, string(raw[4:]))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := []Request{
		{ID: 1, Op: "set_secret", Key: "a", Value: []byte{0, 1, 2, 0xff}},
		{ID: 2, Op: "check_presence", Handle: []byte{1, 0, 0, 0}, Reason: "unlock"},
	}
	for _, r := range in {
		require.NoError(t, WriteFrame(&buf, r))
	}

	for _, want := range in {
		var got Request
		require.NoError(t, ReadFrame(&buf, &got))
		assert.Equal(t, want, got)
	}

	var extra Request
	assert.ErrorIs(t, ReadFrame(&buf, &extra), io.EOF)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], MaxFrameSize+1)

	var req Request
	err := ReadFrame(bytes.NewReader(header[:]), &req)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	err := WriteFrame(io.Discard, Request{Value: make([]byte, MaxFrameSize)})
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Request{ID: 7, Op: "get_secret"}))
	raw := buf.Bytes()

	var req Request
	err := ReadFrame(bytes.NewReader(raw[:len(raw)-2]), &req)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = ReadFrame(bytes.NewReader(raw[:2]), &req)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameMalformed(t *testing.T) {
	body := "{not json"
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(body))))
	buf.WriteString(body)

	var req Request
	assert.ErrorIs(t, ReadFrame(strings.NewReader(buf.String()), &req), ErrMalformed)
}
