package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// deriveKey stretches the configured master secret into a 32-byte AES-256
// key scoped to this purpose via HKDF-SHA256, rather than hashing the
// master secret directly — a compromised vault-at-rest key should not also
// be usable to derive keys for any other subsystem.
func deriveKey(masterKey string) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(masterKey), nil, []byte("adlcgate-vault-secret-material"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	return key, nil
}

// encrypt seals plaintext with AES-256-GCM, returning IV(12) ‖ ciphertext ‖
// tag(16) as a single byte slice.
func encrypt(masterKey string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt reverses encrypt, validating the authentication tag.
func decrypt(masterKey string, sealed []byte) ([]byte, error) {
	key, err := deriveKey(masterKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("sealed secret material is truncated")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting secret material: %w", err)
	}
	return plaintext, nil
}
