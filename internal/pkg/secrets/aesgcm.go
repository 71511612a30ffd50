package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Ciphertext layout (binary):
// [0..1]   uint16 format version (currently 1)
// [2..13]  12-byte nonce
// [14..]   gcm.Seal output (payload + tag)
const formatVersion uint16 = 1

const (
	nonceSize = 12
	keyLen    = 32
)

var (
	// ErrNoKeyProvider indicates the encryptor was built without keys.
	ErrNoKeyProvider = errors.New("secrets: key provider not configured")
	// ErrEmptyPlaintext indicates an empty plaintext input.
	ErrEmptyPlaintext = errors.New("secrets: plaintext is empty")
	// ErrBadKeyLength indicates the provider returned a non-AES-256 key.
	ErrBadKeyLength = errors.New("secrets: key must be 32 bytes")
	// ErrCiphertextTruncated indicates a ciphertext shorter than the header.
	ErrCiphertextTruncated = errors.New("secrets: ciphertext truncated")
	// ErrBadVersion indicates an unknown ciphertext format version.
	ErrBadVersion = errors.New("secrets: unsupported ciphertext version")
	// ErrDecryptFailed indicates the ciphertext did not open. Deliberately
	// does not distinguish wrong key, wrong scope and tampering.
	ErrDecryptFailed = errors.New("secrets: decrypt failed")
)

// AESGCM implements Encryptor with AES-256-GCM.
type AESGCM struct {
	keys KeyProvider
}

// NewAESGCM constructs an AES-GCM encryptor over the given key provider.
func NewAESGCM(keys KeyProvider) *AESGCM {
	return &AESGCM{keys: keys}
}

// Encrypt seals plaintext bound to scope.
func (e *AESGCM) Encrypt(plaintext []byte, scope Scope) ([]byte, error) {
	if e == nil || e.keys == nil {
		return nil, ErrNoKeyProvider
	}
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}

	gcm, err := e.aead(scope)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secrets: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, scopeAAD(scope))

	out := make([]byte, 2+nonceSize+len(sealed))
	binary.BigEndian.PutUint16(out[0:2], formatVersion)
	copy(out[2:2+nonceSize], nonce)
	copy(out[2+nonceSize:], sealed)

	return out, nil
}

// Decrypt opens ciphertext previously sealed with the same scope.
func (e *AESGCM) Decrypt(ciphertext []byte, scope Scope) ([]byte, error) {
	if e == nil || e.keys == nil {
		return nil, ErrNoKeyProvider
	}
	if len(ciphertext) < 2+nonceSize+1 {
		return nil, ErrCiphertextTruncated
	}

	if v := binary.BigEndian.Uint16(ciphertext[0:2]); v != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	gcm, err := e.aead(scope)
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[2 : 2+nonceSize]
	sealed := ciphertext[2+nonceSize:]

	plain, err := gcm.Open(nil, nonce, sealed, scopeAAD(scope))
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}

func (e *AESGCM) aead(scope Scope) (cipher.AEAD, error) {
	key, err := e.keys.Key(scope)
	if err != nil {
		return nil, fmt.Errorf("secrets: key provider: %w", err)
	}
	if len(key) != keyLen {
		return nil, fmt.Errorf("%w (got %d)", ErrBadKeyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: aes init: %w", err)
	}
	return cipher.NewGCM(block)
}

// scopeAAD encodes the scope into a fixed-length, separator-free AAD.
func scopeAAD(s Scope) []byte {
	canonical := fmt.Sprintf("uid=%d\npurpose=%s\n", s.UserID, s.Purpose)
	sum := sha256.Sum256([]byte(canonical))
	return sum[:]
}

// StaticKeyProvider returns the same key for every scope. Suitable for a
// single-tenant deployment with the key held in configuration.
type StaticKeyProvider struct {
	KeyBytes []byte
}

// Key returns a copy of the static key.
func (p StaticKeyProvider) Key(_ Scope) ([]byte, error) {
	if len(p.KeyBytes) == 0 {
		return nil, errors.New("secrets: static key not set")
	}
	k := make([]byte, len(p.KeyBytes))
	copy(k, p.KeyBytes)
	return k, nil
}

// DeriveDocumentKey stretches an emergency secret into an AES-256 key via
// HKDF-SHA256. Used to seal the recovery document so that only a caller who
// holds the secret can open it; the raw secret never reaches either tier.
func DeriveDocumentKey(secret string, scope Scope) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("secrets: empty document secret")
	}

	r := hkdf.New(sha256.New, []byte(secret), scopeAAD(scope), []byte("credward/recovery-doc/v1"))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secrets: hkdf: %w", err)
	}
	return key, nil
}

// DocumentKeyProvider yields the HKDF key derived from a caller-held secret.
type DocumentKeyProvider struct {
	Secret string
}

// Key derives the document key for scope.
func (p DocumentKeyProvider) Key(scope Scope) ([]byte, error) {
	return DeriveDocumentKey(p.Secret, scope)
}
