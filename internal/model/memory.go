// Package model defines the Memory record and the invariants it must
// satisfy throughout its lifecycle.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sector is one of the five closed-set cognitive sectors a memory is
// classified into.
type Sector string

const (
	SectorEpisodic   Sector = "episodic"
	SectorSemantic   Sector = "semantic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// ValidSector reports whether s is one of the five closed-set sectors.
func ValidSector(s Sector) bool {
	switch s {
	case SectorEpisodic, SectorSemantic, SectorProcedural, SectorEmotional, SectorReflective:
		return true
	default:
		return false
	}
}

// Memory is the unit of storage: a user's free-text note, its cognitive
// classification, its encryption envelope, and its temporal validity.
type Memory struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`

	// ContentPlaintext holds the decrypted content in memory. For encrypted
	// records it is never part of the stored payload; for unencrypted records
	// it is stored as the payload's "content" field.
	ContentPlaintext string `json:"-"`

	IsEncrypted      bool   `json:"is_encrypted"`
	EncryptedContent string `json:"encrypted_content,omitempty"`
	ContentNonce     string `json:"content_nonce,omitempty"`

	ProjectID      string   `json:"project_id"`
	Namespace      string   `json:"namespace"`
	MemoryTypes    []string `json:"memory_types"`
	UserPreference bool     `json:"user_preference"`

	SectorPrimary    Sector   `json:"sector_primary"`
	SectorSecondary  []Sector `json:"sector_secondary"`
	SectorConfidence float64  `json:"sector_confidence"`
	SemanticTags     []string `json:"semantic_tags"`

	TemporalValidFrom  time.Time  `json:"temporal_valid_from"`
	TemporalValidUntil *time.Time `json:"temporal_valid_until,omitempty"`
	TemporalIsCurrent  bool       `json:"temporal_is_current"`
	Supersedes         string     `json:"supersedes,omitempty"`
	SupersededBy       string     `json:"superseded_by,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	AccessCount    int        `json:"access_count"`
	LastAccessed   *time.Time `json:"last_accessed,omitempty"`
	Score          float64    `json:"score"`
	ScoreUpdatedAt *time.Time `json:"score_updated_at,omitempty"`

	ExtraMetadata map[string]any `json:"extra_metadata,omitempty"`
}

// NewMemoryID derives a deterministic id from user, title, content prefix
// and the instant of creation, matching the original implementation's
// md5(f"{user_id}:{title}:{content[:100]}:{now}") scheme.
func NewMemoryID(userID, title, content string, at time.Time) string {
	prefix := content
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s:%s", userID, title, prefix, at.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])
}

// NewMemoryUUID generates a random UUIDv7 id, the alternative id strategy
// for production wiring that wants monotonically sortable ids.
func NewMemoryUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
