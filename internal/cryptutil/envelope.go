package cryptutil

import (
	"context"
	"errors"

	"github.com/chirino/memory-service/internal/dek"
	"github.com/chirino/memory-service/internal/memoryerr"
)

var errNoRecordAfterInsert = errors.New("dek registry: no record found after insert")

// Envelope ties the master-key Manager to a DEK Registry, providing the
// get-or-create-DEK and encrypt/decrypt-for-user operations the Memory
// Service needs. It never retains unwrapped DEK bytes between calls.
type Envelope struct {
	manager  *Manager
	registry dek.Registry
}

// NewEnvelope constructs an Envelope over the given master-key manager and
// DEK registry.
func NewEnvelope(manager *Manager, registry dek.Registry) *Envelope {
	return &Envelope{manager: manager, registry: registry}
}

// GetOrCreateDEK returns the unwrapped DEK for userID, creating and
// persisting a wrapped one via the registry if none exists yet.
func (e *Envelope) GetOrCreateDEK(ctx context.Context, userID string) ([]byte, error) {
	rec, err := e.registry.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return e.manager.UnwrapDEK(rec.WrappedDEK)
	}

	newDEK, err := GenerateDEK()
	if err != nil {
		return nil, err
	}
	wrapped, err := e.manager.WrapDEK(newDEK)
	if err != nil {
		return nil, err
	}
	if err := e.registry.Insert(ctx, userID, wrapped); err != nil {
		return nil, err
	}

	// Another caller may have won the bootstrap race; re-read to get the
	// record that actually landed, matching the registry's race-safe
	// upsert contract.
	rec, err = e.registry.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "get_or_create_dek", Err: errNoRecordAfterInsert}
	}
	return e.manager.UnwrapDEK(rec.WrappedDEK)
}

// EncryptForUser encrypts plaintext with the user's DEK, creating one if
// necessary. Registry and crypto errors are returned to the caller; callers
// that want plaintext-fallback-on-failure behavior catch the error
// themselves and store content unencrypted, as the Memory Service does.
func (e *Envelope) EncryptForUser(ctx context.Context, userID, plaintext string) (EncryptedContent, error) {
	dekBytes, err := e.GetOrCreateDEK(ctx, userID)
	if err != nil {
		return EncryptedContent{}, err
	}
	return EncryptContent(dekBytes, plaintext)
}

// DecryptForUser decrypts a stored payload with the user's DEK.
func (e *Envelope) DecryptForUser(ctx context.Context, userID string, enc EncryptedContent) (string, error) {
	dekBytes, err := e.GetOrCreateDEK(ctx, userID)
	if err != nil {
		return "", err
	}
	return DecryptContent(dekBytes, enc)
}
