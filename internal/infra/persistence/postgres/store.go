// Package postgres stores trial documents as JSONB rows in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trialcore/internal/persistence"
	"trialcore/pkg/document"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ persistence.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/trialcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store implements persistence.Store on a Postgres table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens dsn (falls back to defaultDSN), pings it and ensures the
// trials table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTrialsTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureTrialsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS trials (
		study_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure trials table: %w", err)
	}
	return nil
}

// Get implements persistence.Store.
func (s *Store) Get(ctx context.Context, studyID string) (document.Object, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM trials WHERE study_id = $1`, studyID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", persistence.ErrNotFound, studyID)
	}
	if err != nil {
		return nil, fmt.Errorf("select trial %s: %w", studyID, err)
	}
	doc, err := document.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("trial %s: %w", studyID, err)
	}
	return doc, nil
}

// Put implements persistence.Store.
func (s *Store) Put(ctx context.Context, studyID string, doc document.Object) error {
	if studyID == "" {
		return fmt.Errorf("study id required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode trial %s: %w", studyID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO trials(study_id,payload,updated_at) VALUES($1,$2,$3) ON CONFLICT(study_id) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`,
		studyID, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert trial %s: %w", studyID, err)
	}
	return nil
}

// List implements persistence.Store.
func (s *Store) List(ctx context.Context) ([]persistence.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT study_id, updated_at FROM trials ORDER BY study_id`)
	if err != nil {
		return nil, fmt.Errorf("select trials: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []persistence.Entry
	for rows.Next() {
		var e persistence.Entry
		if err := rows.Scan(&e.StudyID, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return out, nil
}

// Delete implements persistence.Store.
func (s *Store) Delete(ctx context.Context, studyID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trials WHERE study_id=$1`, studyID)
	if err != nil {
		return false, fmt.Errorf("delete trial %s: %w", studyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete trial %s: %w", studyID, err)
	}
	return n > 0, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
