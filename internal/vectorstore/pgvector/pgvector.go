// Package pgvector is the secondary Vector Store Driver backend, adapted
// from the teacher's entry_embeddings table to a single table named after
// the collection (default "mem0") whose payload column holds the full record (minus content_plaintext) as
// JSONB alongside the indexed filter columns.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chirino/memory-service/internal/vectorstore"
)

func init() {
	vectorstore.Register(vectorstore.Plugin{
		Name: "pgvector",
		Loader: func(ctx context.Context, collection, dsn string) (vectorstore.Store, error) {
			return Open(dsn, collection)
		},
	})
}

// Store implements vectorstore.Store over a Postgres table with a pgvector
// embedding column and a JSONB payload column.
type Store struct {
	db    *gorm.DB
	table string
}

// Open connects to dsn and returns a Store backed by the given table name
// (the "collection" in vector store terms).
func Open(dsn, table string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	if table == "" {
		table = "mem0"
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(1024) NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'
		)`, s.table),
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector: ensure_collection: %w", err)
		}
	}
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, field := range vectorstore.IndexedFields {
		stmt := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s ((payload->>'%s'))`,
			s.table, field, s.table, field,
		)
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgvector: ensure_indexes(%s): %w", field, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	for _, p := range points {
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("pgvector: marshal payload: %w", err)
		}
		vec := pgvec.NewVector(p.Vector)
		stmt := fmt.Sprintf(`
			INSERT INTO %s (id, embedding, payload)
			VALUES (?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, s.table)
		if err := s.db.WithContext(ctx).Exec(stmt, p.ID, vec, string(payloadJSON)).Error; err != nil {
			return fmt.Errorf("pgvector: upsert: %w", err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, filter vectorstore.Filter, limit int) ([]vectorstore.SearchResult, error) {
	vec := pgvec.NewVector(vector)
	where, args := whereClause(filter)
	stmt := fmt.Sprintf(`
		SELECT id, payload, 1 - (embedding <=> ?) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> ?
		LIMIT ?`, s.table, where)
	queryArgs := append([]any{vec}, args...)
	queryArgs = append(queryArgs, vec, limit)

	rows, err := s.db.WithContext(ctx).Raw(stmt, queryArgs...).Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.SearchResult
	for rows.Next() {
		var id, payloadJSON string
		var score float64
		if err := rows.Scan(&id, &payloadJSON, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("pgvector: unmarshal payload: %w", err)
		}
		results = append(results, vectorstore.SearchResult{
			Point: vectorstore.Point{ID: id, Payload: payload},
			Score: score,
		})
	}
	return results, nil
}

func (s *Store) Scroll(ctx context.Context, filter vectorstore.Filter, limit int, cursor string) (vectorstore.ScrollPage, error) {
	where, args := whereClause(filter)
	if cursor != "" {
		if where != "TRUE" {
			where += " AND id > ?"
		} else {
			where = "id > ?"
		}
		args = append(args, cursor)
	}
	stmt := fmt.Sprintf(`SELECT id, payload FROM %s WHERE %s ORDER BY id LIMIT ?`, s.table, where)
	args = append(args, limit)

	rows, err := s.db.WithContext(ctx).Raw(stmt, args...).Rows()
	if err != nil {
		return vectorstore.ScrollPage{}, fmt.Errorf("pgvector: scroll: %w", err)
	}
	defer rows.Close()

	page := vectorstore.ScrollPage{}
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return vectorstore.ScrollPage{}, fmt.Errorf("pgvector: scan: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return vectorstore.ScrollPage{}, fmt.Errorf("pgvector: unmarshal payload: %w", err)
		}
		page.Points = append(page.Points, vectorstore.Point{ID: id, Payload: payload})
	}
	if len(page.Points) == limit {
		page.NextCursor = page.Points[len(page.Points)-1].ID
	}
	return page, nil
}

func (s *Store) Retrieve(ctx context.Context, ids []string) ([]vectorstore.Point, error) {
	stmt := fmt.Sprintf(`SELECT id, payload FROM %s WHERE id = ANY(?)`, s.table)
	rows, err := s.db.WithContext(ctx).Raw(stmt, ids).Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector: retrieve: %w", err)
	}
	defer rows.Close()

	var out []vectorstore.Point
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("pgvector: unmarshal payload: %w", err)
		}
		out = append(out, vectorstore.Point{ID: id, Payload: payload})
	}
	return out, nil
}

func (s *Store) SetPayload(ctx context.Context, id string, patch map[string]any) error {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("pgvector: marshal patch: %w", err)
	}
	stmt := fmt.Sprintf(`UPDATE %s SET payload = payload || ?::jsonb WHERE id = ?`, s.table)
	if err := s.db.WithContext(ctx).Exec(stmt, string(patchJSON), id).Error; err != nil {
		return fmt.Errorf("pgvector: set_payload: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY(?)`, s.table)
	if err := s.db.WithContext(ctx).Exec(stmt, ids).Error; err != nil {
		return fmt.Errorf("pgvector: delete: %w", err)
	}
	return nil
}

func whereClause(f vectorstore.Filter) (string, []any) {
	clause := "TRUE"
	var args []any
	if f.UserID != "" {
		clause += " AND payload->>'user_id' = ?"
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		clause += " AND payload->>'project_id' = ?"
		args = append(args, f.ProjectID)
	}
	if f.OnlyCurrent {
		clause += " AND (payload->>'temporal_is_current')::boolean = TRUE"
	}
	if len(f.MemoryTypes) > 0 {
		clause += " AND payload->'memory_types' ?| ?"
		args = append(args, f.MemoryTypes)
	}
	return clause, args
}
