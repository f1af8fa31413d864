// Package vectorstore defines the Vector Store Driver: a thin typed adapter
// over an external vector store, generalizing the teacher's plugin
// registry pattern (Register/Select) from a single qdrant-or-pgvector
// choice to the full operation set the cognitive memory engine needs.
package vectorstore

import (
	"context"
	"fmt"
)

// Point is one stored vector plus its payload, keyed by an opaque string
// id (memory record id).
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchResult is a Point plus its similarity score.
type SearchResult struct {
	Point
	Score float64
}

// Filter restricts Search/Scroll to matching points. Zero-value
// fields mean "no constraint" on that dimension.
type Filter struct {
	UserID      string
	ProjectID   string
	OnlyCurrent bool
	MemoryTypes []string
}

// ScrollPage is one page of a cursor-paginated Scroll call.
type ScrollPage struct {
	Points     []Point
	NextCursor string
}

// Store is the Vector Store Driver interface: ensure_collection,
// ensure_indexes, upsert, search, scroll, retrieve, set_payload, delete.
type Store interface {
	Name() string

	// EnsureCollection idempotently creates the collection if absent, with
	// the fixed vector width and cosine distance.
	EnsureCollection(ctx context.Context) error

	// EnsureIndexes idempotently creates payload indexes for the fields
	// the driver filters on.
	EnsureIndexes(ctx context.Context) error

	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]SearchResult, error)
	Scroll(ctx context.Context, filter Filter, limit int, cursor string) (ScrollPage, error)
	Retrieve(ctx context.Context, ids []string) ([]Point, error)
	SetPayload(ctx context.Context, id string, patch map[string]any) error
	Delete(ctx context.Context, ids []string) error
}

// IndexedFields are the payload fields every backend must index for
// efficient filtering, matching the original implementation's
// _create_payload_indexes field list.
var IndexedFields = []string{
	"user_id",
	"project_id",
	"sector_primary",
	"temporal_is_current",
	"memory_types",
	"created_at",
	"is_encrypted",
}

// Loader constructs a Store from a collection name and connection string.
type Loader func(ctx context.Context, collection, dsn string) (Store, error)

// Plugin pairs a backend name with its Loader, following the registration
// shape of the teacher's registry/vector package.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins = map[string]Plugin{}

// Register adds a backend plugin by name. Intended to be called from each
// backend package's init().
func Register(p Plugin) {
	plugins[p.Name] = p
}

// Names returns the registered backend names.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	return names
}

// Select constructs the named backend's Store.
func Select(ctx context.Context, name, collection, dsn string) (Store, error) {
	p, ok := plugins[name]
	if !ok {
		return nil, fmt.Errorf("vectorstore: unknown backend %q", name)
	}
	return p.Loader(ctx, collection, dsn)
}
