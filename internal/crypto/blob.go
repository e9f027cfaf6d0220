package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// KeySize is the size of every symmetric key handled by this package.
const KeySize = 32

var (
	// ErrInvalidData is returned when the data to be decrypted is invalid
	ErrInvalidData = errors.New("invalid encrypted data")
	// ErrInvalidKey is returned for keys that are not KeySize bytes long
	ErrInvalidKey = errors.New("invalid key size")
)

// Tag is bound to a blob as additional authenticated data, so a blob
// sealed for one purpose cannot be opened for another.
type Tag string

const (
	// TagOfflineKD seals the offline key-derivation secret under the biometrics key.
	TagOfflineKD Tag = "biometrics.offline-kd"
	// TagVerifier seals the canary used to check an offline key.
	TagVerifier Tag = "offline.verifier"
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptBlob encrypts data using AES-GCM with the provided key and tag.
// The returned blob format is: nonce (12 bytes) + ciphertext
func EncryptBlob(key, plaintext []byte, tag Tag) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, []byte(tag)), nil
}

// DecryptBlob decrypts a blob produced by EncryptBlob with the same key and tag.
func DecryptBlob(key, blob []byte, tag Tag) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize+gcm.Overhead() {
		return nil, ErrInvalidData
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(tag))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	// Callers compare against empty slices, never nil
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}
