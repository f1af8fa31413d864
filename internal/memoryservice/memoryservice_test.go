package memoryservice

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/classifier"
	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/cryptutil"
	"github.com/chirino/memory-service/internal/dek"
	"github.com/chirino/memory-service/internal/memoryerr"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// fakeStore is an in-process vectorstore.Store used for orchestration tests.
type fakeStore struct {
	mu     sync.Mutex
	points map[string]vectorstore.Point
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]vectorstore.Point)}
}

func (f *fakeStore) Name() string                             { return "fake" }
func (f *fakeStore) EnsureCollection(context.Context) error    { return nil }
func (f *fakeStore) EnsureIndexes(context.Context) error       { return nil }

func (f *fakeStore) Upsert(_ context.Context, points []vectorstore.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ []float32, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vectorstore.SearchResult
	for _, p := range f.points {
		if !matches(p, filter) {
			continue
		}
		out = append(out, vectorstore.SearchResult{Point: p, Score: 0.9})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Scroll(_ context.Context, filter vectorstore.Filter, limit int, _ string) (vectorstore.ScrollPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page vectorstore.ScrollPage
	for _, p := range f.points {
		if !matches(p, filter) {
			continue
		}
		page.Points = append(page.Points, p)
	}
	sort.Slice(page.Points, func(i, j int) bool { return page.Points[i].ID < page.Points[j].ID })
	if len(page.Points) > limit {
		page.Points = page.Points[:limit]
	}
	return page, nil
}

func (f *fakeStore) Retrieve(_ context.Context, ids []string) ([]vectorstore.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vectorstore.Point
	for _, id := range ids {
		if p, ok := f.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) SetPayload(_ context.Context, id string, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.points[id]
	if !ok {
		return nil
	}
	for k, v := range patch {
		p.Payload[k] = v
	}
	f.points[id] = p
	return nil
}

func (f *fakeStore) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}

func matches(p vectorstore.Point, filter vectorstore.Filter) bool {
	if filter.UserID != "" && getString(p.Payload, "user_id") != filter.UserID {
		return false
	}
	if filter.ProjectID != "" && getString(p.Payload, "project_id") != filter.ProjectID {
		return false
	}
	if filter.OnlyCurrent && !getBool(p.Payload, "temporal_is_current") {
		return false
	}
	return true
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(_ context.Context, title, content string) classifier.Result {
	return classifier.Result{
		PrimarySector:  model.SectorSemantic,
		Confidence:     0.75,
		SemanticTags:   []string{"test"},
		GeneratedTitle: "generated title",
	}
}

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Embed(_ context.Context, _ string) []float64 {
	return make([]float64, f.dims)
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	manager, err := cryptutil.NewManager("test-master-secret")
	require.NoError(t, err)
	registry := dek.NewMemoryRegistry()
	envelope := cryptutil.NewEnvelope(manager, registry)
	store := newFakeStore()
	svc := New(&cfg, envelope, fakeClassifier{}, fakeEmbedder{dims: cfg.EmbeddingDims}, store)
	return svc, store
}

func TestAddStoresEncryptedContent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Title: "Meeting notes", Content: "We discussed the roadmap.", UserID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.True(t, res.IsEncrypted)
	require.Equal(t, model.SectorSemantic, res.SectorPrimary)

	point, ok := store.points[res.ID]
	require.True(t, ok)
	require.Empty(t, point.Payload["content"])
	require.NotEmpty(t, point.Payload["encrypted_content"])
}

func TestAddRejectsEmptyContent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Add(t.Context(), AddRequest{UserID: "u1", Content: ""})
	require.Error(t, err)
}

func TestGetByIDDecryptsAndBumpsAccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "secret content", UserID: "u1"})
	require.NoError(t, err)

	mem, err := svc.GetByID(ctx, "u1", res.ID)
	require.NoError(t, err)
	require.Equal(t, "secret content", mem.ContentPlaintext)
	require.Equal(t, 1, mem.AccessCount)

	mem2, err := svc.GetByID(ctx, "u1", res.ID)
	require.NoError(t, err)
	require.Equal(t, 2, mem2.AccessCount)
}

func TestGetByIDDeniesWrongOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "secret", UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, "someone-else", res.ID)
	require.Error(t, err)
	require.ErrorAs(t, err, new(*memoryerr.NotFoundError))
}

func TestUpdateContentSupersedes(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "v1 content", UserID: "u1"})
	require.NoError(t, err)

	newContent := "v2 content"
	updated, err := svc.Update(ctx, "u1", res.ID, UpdateRequest{Content: &newContent})
	require.NoError(t, err)
	require.NotEqual(t, res.ID, updated.ID)
	require.Equal(t, res.ID, updated.Supersedes)

	oldPoint, ok := store.points[res.ID]
	require.True(t, ok)
	require.False(t, getBool(oldPoint.Payload, "temporal_is_current"))
	require.Equal(t, updated.ID, getString(oldPoint.Payload, "superseded_by"))
}

func TestUpdateMetadataOnlyDoesNotSupersede(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "same content", UserID: "u1"})
	require.NoError(t, err)

	newProject := "proj-2"
	updated, err := svc.Update(ctx, "u1", res.ID, UpdateRequest{ProjectID: &newProject})
	require.NoError(t, err)
	require.Equal(t, res.ID, updated.ID)
	require.Equal(t, "proj-2", updated.ProjectID)
}

func TestDeleteRemovesMemory(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "to delete", UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "u1", res.ID))
	_, ok := store.points[res.ID]
	require.False(t, ok)
}

func TestSearchReturnsDecryptedResults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.Add(ctx, AddRequest{Content: "important project notes", UserID: "u1"})
	require.NoError(t, err)

	resp, err := svc.Search(ctx, SearchRequest{Query: "project notes", UserID: "u1", OnlyCurrent: true, WithExplanation: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "important project notes", resp.Results[0].Memory.ContentPlaintext)
	require.NotEmpty(t, resp.Results[0].Explanation)
}

func TestCleanupDryRunDoesNotDelete(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Add(ctx, AddRequest{Content: "stale memory", UserID: "u1"})
	require.NoError(t, err)
	p := store.points[res.ID]
	p.Payload["created_at"] = timeString(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p.Payload["score"] = 0.1
	store.points[res.ID] = p

	result, err := svc.Cleanup(ctx, CleanupRequest{Days: 365, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalFound)
	require.Equal(t, 0, result.DeletedCount)
	_, ok := store.points[res.ID]
	require.True(t, ok)
}

func TestCleanupExcludesPinned(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	res, err := svc.Add(ctx, AddRequest{Content: "pinned memory", UserID: "u1"})
	require.NoError(t, err)
	p := store.points[res.ID]
	p.Payload["created_at"] = timeString(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	p.Payload["score"] = 0.1
	p.Payload["extra_metadata"] = map[string]any{"is_pinned": true}
	store.points[res.ID] = p

	result, err := svc.Cleanup(ctx, CleanupRequest{Days: 365, DryRun: false})
	require.NoError(t, err)
	require.Equal(t, 0, result.TotalFound)
}

func TestRecalculateScoresUpdatesStaleScores(t *testing.T) {
	svc, store := newTestService(t)
	ctx := t.Context()

	res, err := svc.Add(ctx, AddRequest{Content: "content for scoring", UserID: "u1"})
	require.NoError(t, err)
	p := store.points[res.ID]
	p.Payload["score"] = 0.0
	store.points[res.ID] = p

	result, err := svc.RecalculateScores(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalProcessed)
	require.Equal(t, 1, result.UpdatedCount)
}
