package sync

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds the derived key to this package's purpose, per standard
// HKDF practice.
var hkdfInfo = []byte("memoryforge/sync/envelope-v1")

// ErrIntegrity signals a decryption or checksum-verification failure — the
// data may be corrupted or encrypted under a different key (§4.11).
var ErrIntegrity = errors.New("sync: integrity check failed")

// keySize is the raw key length chacha20poly1305.New requires.
const keySize = chacha20poly1305.KeySize // 32

// EncryptionLayer provides AEAD-equivalent confidentiality and integrity
// over memory payloads using a pre-shared symmetric key (§4.11), the Go
// analogue of the source's Fernet-based layer.
type EncryptionLayer struct {
	aead *chacha20poly1305AEAD
}

// chacha20poly1305AEAD wraps the cipher.AEAD so callers never see the
// underlying library type directly.
type chacha20poly1305AEAD struct {
	cipherAEAD cipherAEAD
}

// cipherAEAD is the subset of cipher.AEAD this package depends on.
type cipherAEAD interface {
	NonceSize() int
	Overhead() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewEncryptionLayer builds an EncryptionLayer from a URL-safe
// base64-encoded 32-byte key (§4.11).
func NewEncryptionLayer(key string) (*EncryptionLayer, error) {
	raw, err := decodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	derived := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	aead, err := chacha20poly1305.New(derived)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &EncryptionLayer{aead: &chacha20poly1305AEAD{cipherAEAD: aead}}, nil
}

func decodeKey(key string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		return nil, err
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", keySize, len(raw))
	}
	return raw, nil
}

// Encrypt seals data under a random nonce, returning nonce||ciphertext
// base64-encoded. Empty input encrypts to an empty string, matching the
// source's pass-through-on-empty behavior.
func (e *EncryptionLayer) Encrypt(data string) (string, error) {
	if data == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.cipherAEAD.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.cipherAEAD.Seal(nonce, nonce, []byte(data), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A tampered or mis-keyed token fails with
// ErrIntegrity.
func (e *EncryptionLayer) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: malformed token: %v", ErrIntegrity, err)
	}

	nonceSize := e.aead.cipherAEAD.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: token too short", ErrIntegrity)
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.cipherAEAD.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh URL-safe base64-encoded 32-byte key, for
// first-time sync setup.
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}
