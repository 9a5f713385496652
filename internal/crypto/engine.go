// Package crypto turns a user-chosen password into an AES-256-GCM key and
// encrypts/decrypts a single secret with it. The key derivation is
// deliberately slow (PBKDF2 with a high iteration count) so that an offline
// brute-force against a stolen database stays expensive.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used when no override
	// is configured.
	DefaultIterations = 480000

	saltSize = 16
	keySize  = 32 // AES-256
)

// Engine derives keys from passwords and performs authenticated encryption
// of a single secret string. It is stateless and safe for concurrent use.
type Engine struct {
	iterations int
}

// NewEngine creates an Engine with the given PBKDF2 iteration count.
// Non-positive values fall back to DefaultIterations.
func NewEngine(iterations int) *Engine {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Engine{iterations: iterations}
}

// deriveKey stretches (password, salt) into an AES-256 key. Deterministic
// for the same inputs.
func (e *Engine) deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, e.iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from password and a fresh
// random 16-byte salt. Every call generates a new salt and nonce, so two
// encryptions of the same inputs never produce comparable ciphertext.
// The returned ciphertext is nonce || sealed || tag.
func (e *Engine) Encrypt(plaintext, password string) (ciphertext, salt []byte, err error) {
	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, fmt.Errorf("rand salt: %w", err)
	}

	aead, err := e.aead(password, salt)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext = aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return ciphertext, salt, nil
}

// Decrypt re-derives the key from (password, salt) and attempts authenticated
// decryption. Any failure -- wrong password, tampered or truncated ciphertext
// -- yields ok=false with no further detail, so a caller cannot distinguish a
// bad password from corrupted data. A failed decrypt is the expected outcome
// for a wrong password and must be handled as normal control flow.
func (e *Engine) Decrypt(ciphertext, salt []byte, password string) (secret string, ok bool) {
	aead, err := e.aead(password, salt)
	if err != nil {
		return "", false
	}

	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", false
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}

func (e *Engine) aead(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}
