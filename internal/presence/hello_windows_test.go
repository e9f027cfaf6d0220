//go:build windows

package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWindowHandle(t *testing.T) {
	h, err := decodeWindowHandle([]byte{0x34, 0x12, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x1234), h)

	h, err = decodeWindowHandle([]byte{0x78, 0x56, 0x34, 0x12, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x12345678), h)

	_, err = decodeWindowHandle([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestHelloError(t *testing.T) {
	assert.NoError(t, helloError(helloVerified))
	assert.ErrorIs(t, helloError(helloCanceled), ErrCancelled)
	assert.ErrorIs(t, helloError(helloNotConfiguredForUser), ErrNotConfigured)
	assert.ErrorIs(t, helloError(helloRetriesExhausted), ErrLockedOut)
	assert.ErrorIs(t, helloError(helloDeviceBusy), ErrFailed)
	assert.ErrorIs(t, helloError(42), ErrFailed)
}
