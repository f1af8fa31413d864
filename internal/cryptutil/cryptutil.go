// Package cryptutil implements the envelope encryption scheme: a PBKDF2-
// derived master key wraps per-user Data Encryption Keys (DEKs), and DEKs
// wrap/unwrap memory content, all via AES-256-GCM.
package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/chirino/memory-service/internal/memoryerr"
)

const (
	masterSalt    = "memoryx_master_salt_v1"
	pbkdf2Rounds  = 100_000
	masterKeyLen  = 32
	dekLen        = 32
	nonceLen      = 12
)

// Manager derives and holds the process master key, and seals/opens DEKs
// and content on behalf of callers. It holds no per-user state.
type Manager struct {
	masterKey []byte
}

// NewManager derives the master key from secret via PBKDF2-HMAC-SHA256
// (100,000 iterations, fixed salt), matching the original implementation
// byte-for-byte.
func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, &memoryerr.InvalidArgumentError{Field: "master_key_secret", Reason: "must not be empty"}
	}
	key, err := pbkdf2.Key(sha256.New, secret, []byte(masterSalt), pbkdf2Rounds, masterKeyLen)
	if err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "derive master key", Err: err}
	}
	return &Manager{masterKey: key}, nil
}

// GenerateDEK returns a fresh random 256-bit Data Encryption Key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, dekLen)
	if _, err := rand.Read(dek); err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "generate dek", Err: err}
	}
	return dek, nil
}

// WrapDEK encrypts a DEK with the master key, returning nonce‖ciphertext.
func (m *Manager) WrapDEK(dek []byte) ([]byte, error) {
	return seal(m.masterKey, dek)
}

// UnwrapDEK decrypts a master-key-wrapped DEK produced by WrapDEK.
func (m *Manager) UnwrapDEK(wrapped []byte) ([]byte, error) {
	return open(m.masterKey, wrapped)
}

// EncryptedContent is the wire shape stored in a memory record's payload
// when is_encrypted is true: base64 ciphertext and base64 nonce kept
// separate, matching the original implementation's payload fields.
type EncryptedContent struct {
	CiphertextB64 string
	NonceB64      string
}

// EncryptContent encrypts plaintext with dek using AES-256-GCM.
func EncryptContent(dek []byte, plaintext string) (EncryptedContent, error) {
	nonce, err := randomNonce()
	if err != nil {
		return EncryptedContent{}, err
	}
	gcm, err := newGCM(dek)
	if err != nil {
		return EncryptedContent{}, err
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return EncryptedContent{
		CiphertextB64: base64.StdEncoding.EncodeToString(ciphertext),
		NonceB64:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// DecryptContent decrypts a payload produced by EncryptContent.
func DecryptContent(dek []byte, enc EncryptedContent) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(enc.CiphertextB64)
	if err != nil {
		return "", &memoryerr.CryptoFailureError{Op: "decode ciphertext", Err: err}
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.NonceB64)
	if err != nil {
		return "", &memoryerr.CryptoFailureError{Op: "decode nonce", Err: err}
	}
	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &memoryerr.CryptoFailureError{Op: "decrypt content", Err: err}
	}
	return string(plain), nil
}

// seal encrypts plaintext with key, prefixing the nonce to the ciphertext —
// the same nonce‖ciphertext shape the original implementation uses for
// wrapped DEKs.
func seal(key, plaintext []byte) ([]byte, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

func open(key, wrapped []byte) ([]byte, error) {
	if len(wrapped) < nonceLen {
		return nil, &memoryerr.CryptoFailureError{Op: "unwrap", Err: fmt.Errorf("ciphertext too short")}
	}
	nonce, ciphertext := wrapped[:nonceLen], wrapped[nonceLen:]
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "unwrap", Err: err}
	}
	return plain, nil
}

func randomNonce() ([]byte, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "generate nonce", Err: err}
	}
	return nonce, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "aes cipher", Err: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &memoryerr.CryptoFailureError{Op: "gcm", Err: err}
	}
	return gcm, nil
}
