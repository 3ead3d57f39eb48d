package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const gcmNonceSize = 12

// DeriveWrapKey creates a deterministic 32-byte wrap key from a master secret
// using Argon2id KDF. The same master secret and salt always produce the same
// wrap key, so wrapped document keys survive process restarts.
//
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32.
func DeriveWrapKey(masterSecret, salt []byte) []byte {
	return argon2.IDKey(masterSecret, salt, 1, 64*1024, 4, 32)
}

// SealWithKey encrypts a small payload with AES-256-GCM under the given
// 32-byte key. Output format: [nonce (12 bytes)][ciphertext].
func SealWithKey(key, plaintext []byte) ([]byte, error) {
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenWithKey decrypts a payload produced by SealWithKey.
func OpenWithKey(key, sealed []byte) ([]byte, error) {
	if len(sealed) < gcmNonceSize {
		return nil, errors.New("sealed data too short")
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}
