// Package secrets encrypts credential material at rest.
//
// TOTP secrets stored in either database tier and the emergency recovery
// document are both sealed with AES-256-GCM. The ciphertext is bound to a
// Scope (user + purpose) via AAD, so a seed ciphertext can never be replayed
// as a recovery document and vice versa.
package secrets

// Purpose identifies what a ciphertext protects.
type Purpose string

const (
	// PurposeTOTPSeed scopes encryption to stored TOTP secrets.
	PurposeTOTPSeed Purpose = "totp_seed"
	// PurposeRecoveryDoc scopes encryption to emergency recovery documents.
	PurposeRecoveryDoc Purpose = "recovery_doc"
)

// Scope binds a ciphertext to a user and purpose. Used as AES-GCM AAD.
type Scope struct {
	UserID  int64
	Purpose Purpose
}

// Encryptor seals and opens scoped credential material.
type Encryptor interface {
	// Encrypt returns ciphertext for plaintext bound to scope.
	Encrypt(plaintext []byte, scope Scope) ([]byte, error)
	// Decrypt returns plaintext for ciphertext; fails if scope differs from
	// the one used at encryption time.
	Decrypt(ciphertext []byte, scope Scope) ([]byte, error)
}

// KeyProvider supplies raw 32-byte AES keys per scope.
type KeyProvider interface {
	Key(scope Scope) ([]byte, error)
}
