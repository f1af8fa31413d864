package dek

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chirino/memory-service/internal/memoryerr"
)

// PostgresRegistry is a pgx-backed Registry with one row per user,
// optimistic locking on revision, and a race-safe bootstrap insert —
// adapted from the teacher's one-row-per-provider dekstore to the
// one-row-per-user shape this module needs.
type PostgresRegistry struct {
	conn *pgx.Conn
}

// NewPostgresRegistry connects to dbURL and returns a Registry.
func NewPostgresRegistry(ctx context.Context, dbURL string) (*PostgresRegistry, error) {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "dek registry connect", Err: err}
	}
	return &PostgresRegistry{conn: conn}, nil
}

// Close releases the underlying connection.
func (s *PostgresRegistry) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *PostgresRegistry) GetActive(ctx context.Context, userID string) (*Record, error) {
	var r Record
	r.UserID = userID
	err := s.conn.QueryRow(ctx,
		`SELECT wrapped_dek, revision, created_at, updated_at FROM user_encryption_keys WHERE user_id=$1`,
		userID,
	).Scan(&r.WrappedDEK, &r.Revision, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &memoryerr.StorageUnavailableError{Op: "dek registry get_active", Err: err}
	}
	return &r, nil
}

func (s *PostgresRegistry) Insert(ctx context.Context, userID string, wrappedDEK []byte) error {
	now := time.Now()
	_, err := s.conn.Exec(ctx,
		`INSERT INTO user_encryption_keys (user_id, wrapped_dek, revision, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, $3)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, wrappedDEK, now,
	)
	if err != nil {
		return &memoryerr.StorageUnavailableError{Op: "dek registry insert", Err: err}
	}
	return nil
}

func (s *PostgresRegistry) Update(ctx context.Context, userID string, wrappedDEK []byte, oldRevision int64) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE user_encryption_keys
		 SET wrapped_dek=$2, revision=revision+1, updated_at=$4
		 WHERE user_id=$1 AND revision=$3`,
		userID, wrappedDEK, oldRevision, time.Now(),
	)
	if err != nil {
		return &memoryerr.StorageUnavailableError{Op: "dek registry update", Err: err}
	}
	if tag.RowsAffected() != 1 {
		return &memoryerr.ConflictError{Resource: fmt.Sprintf("dek:%s", userID), Reason: "stale revision"}
	}
	return nil
}
