// Package dek defines the DEK Registry interface: the external metadata
// store that holds exactly one active, master-key-wrapped Data Encryption
// Key per user. The registry never sees unwrapped key material.
package dek

import (
	"context"
	"sync"
	"time"

	"github.com/chirino/memory-service/internal/memoryerr"
)

// Record is the stored row for one user's active DEK.
type Record struct {
	UserID      string
	WrappedDEK  []byte
	Revision    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Registry is the external metadata store interface for wrapped DEKs.
// Implementations must make Insert race-safe under concurrent callers
// creating a user's first DEK, and Update race-safe via optimistic locking
// on Revision.
type Registry interface {
	// GetActive returns the active record for userID, or nil if none exists.
	GetActive(ctx context.Context, userID string) (*Record, error)

	// Insert creates the first record for userID. If a concurrent caller won
	// the race, Insert succeeds silently; the caller must GetActive again.
	Insert(ctx context.Context, userID string, wrappedDEK []byte) error

	// Update replaces the wrapped DEK for userID, but only if the stored
	// revision equals oldRevision. Returns a *memoryerr.ConflictError if stale.
	// The previous wrapped DEK is overwritten, not kept.
	Update(ctx context.Context, userID string, wrappedDEK []byte, oldRevision int64) error
}

// MemoryRegistry is an in-process Registry implementation used by tests and
// by deployments with no relational metadata store wired up.
type MemoryRegistry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryRegistry returns an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]*Record)}
}

func (r *MemoryRegistry) GetActive(_ context.Context, userID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryRegistry) Insert(_ context.Context, userID string, wrappedDEK []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[userID]; exists {
		// Another caller already bootstrapped this user; succeed silently,
		// matching the race-safe upsert contract.
		return nil
	}
	now := time.Now()
	r.records[userID] = &Record{
		UserID:     userID,
		WrappedDEK: wrappedDEK,
		Revision:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (r *MemoryRegistry) Update(_ context.Context, userID string, wrappedDEK []byte, oldRevision int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return &memoryerr.NotFoundError{UserID: userID, ID: "dek"}
	}
	if rec.Revision != oldRevision {
		return &memoryerr.ConflictError{Resource: "dek:" + userID, Reason: "stale revision"}
	}
	rec.WrappedDEK = wrappedDEK
	rec.Revision++
	rec.UpdatedAt = time.Now()
	return nil
}
