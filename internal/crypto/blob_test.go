package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptBlob(t *testing.T) {
	key, err := Generate(KeySize)
	require.NoError(t, err, "Failed to generate key")

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{name: "Empty plaintext", plaintext: []byte{}},
		{name: "Short plaintext", plaintext: []byte("offline-kd")},
		{name: "Long plaintext", plaintext: bytes.Repeat([]byte("0123456789"), 1000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blob, err := EncryptBlob(key, tc.plaintext, TagOfflineKD)
			require.NoError(t, err, "Encryption failed")

			if len(tc.plaintext) > 0 {
				assert.NotContains(t, string(blob), string(tc.plaintext), "Blob should not contain the plaintext")
			}

			decrypted, err := DecryptBlob(key, blob, TagOfflineKD)
			require.NoError(t, err, "Decryption failed")
			assert.Equal(t, tc.plaintext, decrypted)
		})
	}
}

func TestDecryptBlobErrors(t *testing.T) {
	key, err := Generate(KeySize)
	require.NoError(t, err)
	wrongKey, err := Generate(KeySize)
	require.NoError(t, err)

	blob, err := EncryptBlob(key, []byte("Test plaintext"), TagOfflineKD)
	require.NoError(t, err)

	corrupted := append([]byte{}, blob...)
	corrupted[len(corrupted)-1] ^= 0xFF

	testCases := []struct {
		name string
		blob []byte
		key  []byte
		tag  Tag
	}{
		{name: "Too short blob", blob: []byte("too short"), key: key, tag: TagOfflineKD},
		{name: "Wrong key", blob: blob, key: wrongKey, tag: TagOfflineKD},
		{name: "Wrong tag", blob: blob, key: key, tag: TagVerifier},
		{name: "Corrupted blob", blob: corrupted, key: key, tag: TagOfflineKD},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecryptBlob(tc.key, tc.blob, tc.tag)
			assert.ErrorIs(t, err, ErrInvalidData)
		})
	}
}

func TestInvalidKeySize(t *testing.T) {
	_, err := EncryptBlob([]byte("short"), []byte("x"), TagOfflineKD)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecryptBlob(make([]byte, 16), make([]byte, 64), TagOfflineKD)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
