package memoryservice

import (
	"time"

	"github.com/chirino/memory-service/internal/model"
)

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func sectorsToStrings(sectors []model.Sector) []string {
	out := make([]string, len(sectors))
	for i, s := range sectors {
		out[i] = string(s)
	}
	return out
}

func stringsToSectors(ss []string) []model.Sector {
	out := make([]model.Sector, len(ss))
	for i, s := range ss {
		out[i] = model.Sector(s)
	}
	return out
}

// toPayload converts a Memory into the generic payload map a Vector Store
// Driver stores alongside the embedding. When the record is encrypted,
// content is omitted entirely — only the wrapped ciphertext is kept, never
// the plaintext alongside it.
func toPayload(mem model.Memory) map[string]any {
	payload := map[string]any{
		"title":                mem.Title,
		"user_id":              mem.UserID,
		"is_encrypted":         mem.IsEncrypted,
		"project_id":           mem.ProjectID,
		"namespace":            mem.Namespace,
		"memory_types":         mem.MemoryTypes,
		"user_preference":      mem.UserPreference,
		"sector_primary":       string(mem.SectorPrimary),
		"sector_secondary":     sectorsToStrings(mem.SectorSecondary),
		"sector_confidence":    mem.SectorConfidence,
		"semantic_tags":        mem.SemanticTags,
		"temporal_valid_from":  timeString(mem.TemporalValidFrom),
		"temporal_is_current":  mem.TemporalIsCurrent,
		"created_at":           timeString(mem.CreatedAt),
		"access_count":         mem.AccessCount,
		"score":                mem.Score,
		"extra_metadata":       mem.ExtraMetadata,
	}

	if mem.IsEncrypted {
		payload["encrypted_content"] = mem.EncryptedContent
		payload["content_nonce"] = mem.ContentNonce
	} else {
		payload["content"] = mem.ContentPlaintext
	}
	if mem.TemporalValidUntil != nil {
		payload["temporal_valid_until"] = timeString(*mem.TemporalValidUntil)
	}
	if mem.Supersedes != "" {
		payload["supersedes"] = mem.Supersedes
	}
	if mem.SupersededBy != "" {
		payload["superseded_by"] = mem.SupersededBy
	}
	if mem.UpdatedAt != nil {
		payload["updated_at"] = timeString(*mem.UpdatedAt)
	}
	if mem.LastAccessed != nil {
		payload["last_accessed"] = timeString(*mem.LastAccessed)
	}
	if mem.ScoreUpdatedAt != nil {
		payload["score_updated_at"] = timeString(*mem.ScoreUpdatedAt)
	}
	return payload
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getFloat(m map[string]any, key string) float64 {
	switch x := m[key].(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}

func getInt(m map[string]any, key string) int {
	return int(getFloat(m, key))
}

func getStringSlice(m map[string]any, key string) []string {
	switch x := m[key].(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func getTime(m map[string]any, key string) time.Time {
	s := getString(m, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func getTimePtr(m map[string]any, key string) *time.Time {
	if _, ok := m[key]; !ok {
		return nil
	}
	t := getTime(m, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key]; ok {
		if mm, ok := v.(map[string]any); ok {
			return mm
		}
	}
	return nil
}

// fromPayload reconstructs a Memory from a Vector Store Driver's payload.
// For encrypted records, ContentPlaintext is left empty; the caller
// decrypts it separately via the Envelope.
func fromPayload(id string, payload map[string]any) model.Memory {
	mem := model.Memory{
		ID:                 id,
		UserID:             getString(payload, "user_id"),
		Title:              getString(payload, "title"),
		IsEncrypted:        getBool(payload, "is_encrypted"),
		EncryptedContent:   getString(payload, "encrypted_content"),
		ContentNonce:       getString(payload, "content_nonce"),
		ProjectID:          getString(payload, "project_id"),
		Namespace:          getString(payload, "namespace"),
		MemoryTypes:        getStringSlice(payload, "memory_types"),
		UserPreference:     getBool(payload, "user_preference"),
		SectorPrimary:      model.Sector(getString(payload, "sector_primary")),
		SectorSecondary:    stringsToSectors(getStringSlice(payload, "sector_secondary")),
		SectorConfidence:   getFloat(payload, "sector_confidence"),
		SemanticTags:       getStringSlice(payload, "semantic_tags"),
		TemporalValidFrom:  getTime(payload, "temporal_valid_from"),
		TemporalValidUntil: getTimePtr(payload, "temporal_valid_until"),
		TemporalIsCurrent:  getBool(payload, "temporal_is_current"),
		Supersedes:         getString(payload, "supersedes"),
		SupersededBy:       getString(payload, "superseded_by"),
		CreatedAt:          getTime(payload, "created_at"),
		UpdatedAt:          getTimePtr(payload, "updated_at"),
		AccessCount:        getInt(payload, "access_count"),
		LastAccessed:       getTimePtr(payload, "last_accessed"),
		Score:              getFloat(payload, "score"),
		ScoreUpdatedAt:     getTimePtr(payload, "score_updated_at"),
		ExtraMetadata:      getMap(payload, "extra_metadata"),
	}
	if !mem.IsEncrypted {
		mem.ContentPlaintext = getString(payload, "content")
	}
	return mem
}
