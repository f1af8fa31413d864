// Package memoryservice implements the Memory Service: the orchestrator
// that ties classification, embedding, encryption, scoring and the
// temporal knowledge graph together over a Vector Store Driver.
package memoryservice

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-service/internal/classifier"
	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/cryptutil"
	"github.com/chirino/memory-service/internal/memoryerr"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/temporal"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// Classifier is the subset of classifier.Client the service depends on.
type Classifier interface {
	Classify(ctx context.Context, title, content string) classifier.Result
}

// Embedder is the subset of embedder.Client the service depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) []float64
}

// Service is the Memory Service: add, search, get, update, delete, plus
// the background cleanup/recalculate_scores maintenance operations.
type Service struct {
	cfg        *config.Config
	envelope   *cryptutil.Envelope
	classifier Classifier
	embedder   Embedder
	store      vectorstore.Store

	now func() time.Time
}

// New constructs a Memory Service over its collaborators.
func New(cfg *config.Config, envelope *cryptutil.Envelope, classifierClient Classifier, embedderClient Embedder, store vectorstore.Store) *Service {
	return &Service{
		cfg:        cfg,
		envelope:   envelope,
		classifier: classifierClient,
		embedder:   embedderClient,
		store:      store,
		now:        time.Now,
	}
}

// AddRequest is the input to Add.
type AddRequest struct {
	Title              string
	Content            string
	UserID             string
	ProjectID          string
	Namespace          string
	MemoryTypes        []string
	UserPreference     bool
	TemporalValidUntil *time.Time
	ExtraMetadata      map[string]any
}

// AddResult is the summary returned after a memory is stored.
type AddResult struct {
	ID               string
	Title            string
	SectorPrimary    model.Sector
	SectorConfidence float64
	ProjectID        string
	CreatedAt        time.Time
	IsEncrypted      bool
}

// Add classifies, embeds, encrypts and stores a new memory.
func (s *Service) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	if req.Content == "" {
		return AddResult{}, &memoryerr.InvalidArgumentError{Field: "content", Reason: "must not be empty"}
	}
	if req.UserID == "" {
		return AddResult{}, &memoryerr.InvalidArgumentError{Field: "user_id", Reason: "must not be empty"}
	}

	now := s.now()
	result := s.classifier.Classify(ctx, req.Title, req.Content)

	embedInput := req.Content
	if req.Title != "" {
		embedInput = req.Title + "\n" + req.Content
	}
	vec := toFloat32(s.embedder.Embed(ctx, embedInput))

	id, err := s.newID(req.UserID, req.Title, req.Content, now)
	if err != nil {
		return AddResult{}, err
	}

	title := req.Title
	if title == "" {
		title = result.GeneratedTitle
	}
	memoryTypes := req.MemoryTypes
	if len(memoryTypes) == 0 {
		memoryTypes = []string{"general"}
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = "default"
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = "general"
	}

	mem := model.Memory{
		ID:                 id,
		UserID:             req.UserID,
		Title:              title,
		ContentPlaintext:   req.Content,
		ProjectID:          projectID,
		Namespace:          namespace,
		MemoryTypes:        memoryTypes,
		UserPreference:     req.UserPreference,
		SectorPrimary:      result.PrimarySector,
		SectorSecondary:    result.SecondarySectors,
		SectorConfidence:   result.Confidence,
		SemanticTags:       result.SemanticTags,
		TemporalValidFrom:  now,
		TemporalValidUntil: req.TemporalValidUntil,
		TemporalIsCurrent:  true,
		CreatedAt:          now,
		ExtraMetadata:      req.ExtraMetadata,
	}

	enc, err := s.envelope.EncryptForUser(ctx, req.UserID, req.Content)
	if err != nil {
		log.Warn("content encryption degraded, storing plaintext", "err", err, "user_id", req.UserID)
		mem.IsEncrypted = false
	} else {
		mem.IsEncrypted = true
		mem.EncryptedContent = enc.CiphertextB64
		mem.ContentNonce = enc.NonceB64
	}

	point := vectorstore.Point{ID: mem.ID, Vector: vec, Payload: toPayload(mem)}
	if err := s.store.Upsert(ctx, []vectorstore.Point{point}); err != nil {
		return AddResult{}, &memoryerr.StorageUnavailableError{Op: "add", Err: err}
	}

	return AddResult{
		ID:               mem.ID,
		Title:            mem.Title,
		SectorPrimary:    mem.SectorPrimary,
		SectorConfidence: mem.SectorConfidence,
		ProjectID:        mem.ProjectID,
		CreatedAt:        mem.CreatedAt,
		IsEncrypted:      mem.IsEncrypted,
	}, nil
}

func (s *Service) newID(userID, title, content string, at time.Time) (string, error) {
	if s.cfg.IDStrategy == config.IDStrategyUUID {
		return model.NewMemoryUUID()
	}
	return model.NewMemoryID(userID, title, content, at), nil
}

// fetch retrieves a memory by id and verifies userID owns it, decrypting
// its content but without recording an access.
func (s *Service) fetch(ctx context.Context, userID, id string) (*model.Memory, error) {
	points, err := s.store.Retrieve(ctx, []string{id})
	if err != nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "get_by_id", Err: err}
	}
	if len(points) == 0 {
		return nil, &memoryerr.NotFoundError{UserID: userID, ID: id}
	}
	mem := fromPayload(points[0].ID, points[0].Payload)
	if mem.UserID != userID {
		return nil, &memoryerr.NotFoundError{UserID: userID, ID: id}
	}
	if content, err := s.decryptContent(ctx, mem); err != nil {
		log.Warn("memory decryption failed", "err", err, "id", mem.ID)
		mem.ContentPlaintext = "[Encrypted content - decryption failed]"
	} else {
		mem.ContentPlaintext = content
	}
	return &mem, nil
}

func (s *Service) decryptContent(ctx context.Context, mem model.Memory) (string, error) {
	if !mem.IsEncrypted {
		return mem.ContentPlaintext, nil
	}
	return s.envelope.DecryptForUser(ctx, mem.UserID, cryptutil.EncryptedContent{
		CiphertextB64: mem.EncryptedContent,
		NonceB64:      mem.ContentNonce,
	})
}

// GetByID retrieves a memory by id, verifying ownership, and records the
// access by bumping access_count/last_accessed.
func (s *Service) GetByID(ctx context.Context, userID, id string) (*model.Memory, error) {
	mem, err := s.fetch(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	mem.AccessCount++
	mem.LastAccessed = &now
	patch := map[string]any{
		"access_count":  mem.AccessCount,
		"last_accessed": timeString(now),
	}
	if err := s.store.SetPayload(ctx, mem.ID, patch); err != nil {
		log.Warn("failed to record memory access", "err", err, "id", mem.ID)
	}
	return mem, nil
}

// GetAll returns up to limit memories for a user, optionally scoped to a
// project.
func (s *Service) GetAll(ctx context.Context, userID, projectID string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	page, err := s.store.Scroll(ctx, vectorstore.Filter{UserID: userID, ProjectID: projectID}, limit, "")
	if err != nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "get_all", Err: err}
	}
	mems := make([]model.Memory, 0, len(page.Points))
	for _, p := range page.Points {
		mem := fromPayload(p.ID, p.Payload)
		if content, err := s.decryptContent(ctx, mem); err != nil {
			log.Warn("memory decryption failed", "err", err, "id", mem.ID)
			mem.ContentPlaintext = "[Encrypted content - decryption failed]"
		} else {
			mem.ContentPlaintext = content
		}
		mems = append(mems, mem)
	}
	return mems, nil
}

// UpdateRequest is the input to Update. A non-nil Content that differs from
// the stored value triggers temporal supersession: a new record is created
// and the old one is marked superseded rather than overwritten in place.
type UpdateRequest struct {
	Content       *string
	ProjectID     *string
	MemoryTypes   []string
	ExtraMetadata map[string]any
}

// Update applies an update to a memory, superseding it if content changed.
func (s *Service) Update(ctx context.Context, userID, id string, req UpdateRequest) (*model.Memory, error) {
	existing, err := s.fetch(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Content == nil || *req.Content == existing.ContentPlaintext {
		patch := map[string]any{}
		if req.ProjectID != nil {
			existing.ProjectID = *req.ProjectID
			patch["project_id"] = *req.ProjectID
		}
		if req.MemoryTypes != nil {
			existing.MemoryTypes = req.MemoryTypes
			patch["memory_types"] = req.MemoryTypes
		}
		if req.ExtraMetadata != nil {
			existing.ExtraMetadata = req.ExtraMetadata
			patch["extra_metadata"] = req.ExtraMetadata
		}
		if len(patch) == 0 {
			return existing, nil
		}
		now := s.now()
		existing.UpdatedAt = &now
		patch["updated_at"] = timeString(now)
		if err := s.store.SetPayload(ctx, existing.ID, patch); err != nil {
			return nil, &memoryerr.StorageUnavailableError{Op: "update", Err: err}
		}
		return existing, nil
	}

	return s.supersede(ctx, *existing, req)
}

func (s *Service) supersede(ctx context.Context, predecessor model.Memory, req UpdateRequest) (*model.Memory, error) {
	now := s.now()
	newContent := *req.Content

	result := s.classifier.Classify(ctx, predecessor.Title, newContent)
	embedInput := newContent
	if predecessor.Title != "" {
		embedInput = predecessor.Title + "\n" + newContent
	}
	vec := toFloat32(s.embedder.Embed(ctx, embedInput))

	newID, err := s.newID(predecessor.UserID, predecessor.Title, newContent, now)
	if err != nil {
		return nil, err
	}

	newMem := predecessor
	newMem.ID = newID
	newMem.ContentPlaintext = newContent
	newMem.SectorPrimary = result.PrimarySector
	newMem.SectorSecondary = result.SecondarySectors
	newMem.SectorConfidence = result.Confidence
	newMem.SemanticTags = result.SemanticTags
	newMem.TemporalValidFrom = now
	newMem.TemporalValidUntil = nil
	newMem.TemporalIsCurrent = true
	newMem.CreatedAt = now
	newMem.UpdatedAt = nil
	newMem.AccessCount = 0
	newMem.LastAccessed = nil
	newMem.Supersedes = predecessor.ID
	newMem.SupersededBy = ""
	if req.ProjectID != nil {
		newMem.ProjectID = *req.ProjectID
	}
	if req.MemoryTypes != nil {
		newMem.MemoryTypes = req.MemoryTypes
	}
	if req.ExtraMetadata != nil {
		newMem.ExtraMetadata = req.ExtraMetadata
	}

	enc, err := s.envelope.EncryptForUser(ctx, newMem.UserID, newContent)
	if err != nil {
		log.Warn("content encryption degraded, storing plaintext", "err", err, "user_id", newMem.UserID)
		newMem.IsEncrypted = false
		newMem.EncryptedContent = ""
		newMem.ContentNonce = ""
	} else {
		newMem.IsEncrypted = true
		newMem.EncryptedContent = enc.CiphertextB64
		newMem.ContentNonce = enc.NonceB64
	}

	point := vectorstore.Point{ID: newMem.ID, Vector: vec, Payload: toPayload(newMem)}
	if err := s.store.Upsert(ctx, []vectorstore.Point{point}); err != nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "update", Err: err}
	}

	sleep := func(d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	outcome := temporal.Supersede(newMem, predecessor, func(predecessorID, newID string) error {
		return s.store.SetPayload(ctx, predecessorID, map[string]any{
			"superseded_by":       newID,
			"temporal_is_current": false,
		})
	}, s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, sleep)

	if outcome.ClearedNew {
		log.Warn("supersede predecessor update exhausted retries, clearing new record's current flag",
			"predecessor", predecessor.ID, "new", newMem.ID, "retries", outcome.Retries)
		if err := s.store.SetPayload(ctx, newMem.ID, map[string]any{"temporal_is_current": false}); err != nil {
			log.Warn("failed to clear new record's current flag", "err", err, "id", newMem.ID)
		}
	}

	final := outcome.New
	return &final, nil
}

// Delete removes a memory, verifying ownership first.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.fetch(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, []string{existing.ID}); err != nil {
		return &memoryerr.StorageUnavailableError{Op: "delete", Err: err}
	}
	return nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
