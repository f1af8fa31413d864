// Package memoryerr defines the error taxonomy returned by the memory
// service core: NotFound, AccessDenied, StorageUnavailable, ProviderDegraded,
// CryptoFailure, InvalidArgument, and Conflict.
package memoryerr

import "fmt"

// NotFoundError indicates the requested memory record does not exist.
type NotFoundError struct {
	UserID string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory not found: user=%s id=%s", e.UserID, e.ID)
}

// AccessDeniedError indicates the caller's user_id does not own the record.
type AccessDeniedError struct {
	UserID string
	ID     string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: user=%s id=%s", e.UserID, e.ID)
}

// StorageUnavailableError wraps a failure reaching the vector store or DEK
// registry backing store.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// ProviderDegradedError describes an LLM classifier or embedder call that
// failed and was recovered via a degradation policy (keyword fallback,
// zero vector). The classifier and embedder log their own errors at Warn
// and do not construct this type; no exported Service method returns it.
type ProviderDegradedError struct {
	Provider string
	Err      error
}

func (e *ProviderDegradedError) Error() string {
	return fmt.Sprintf("provider degraded: %s: %v", e.Provider, e.Err)
}

func (e *ProviderDegradedError) Unwrap() error { return e.Err }

// CryptoFailureError indicates a key-unwrap or AEAD open/seal failure.
type CryptoFailureError struct {
	Op  string
	Err error
}

func (e *CryptoFailureError) Error() string {
	return fmt.Sprintf("crypto failure during %s: %v", e.Op, e.Err)
}

func (e *CryptoFailureError) Unwrap() error { return e.Err }

// InvalidArgumentError indicates a caller-supplied argument violates a data
// model invariant.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// ConflictError indicates a concurrent write invalidated an optimistic
// update (e.g. a DEK registry revision mismatch).
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}
