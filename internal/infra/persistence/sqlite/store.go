// Package sqlite stores trial documents in a single SQLite table as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trialcore/internal/persistence"
	"trialcore/pkg/document"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ persistence.Store = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "trialcore.db"

// Store implements persistence.Store on a SQLite file.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating when needed) the database at path.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS trials (
		study_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create trials table: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Get implements persistence.Store.
func (s *Store) Get(ctx context.Context, studyID string) (document.Object, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM trials WHERE study_id = ?`, studyID).Scan(&payload)
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
		`INSERT INTO trials(study_id, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(study_id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		studyID, payload, s.now().UTC().UnixNano()); err != nil {
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
		var (
			id    string
			nanos int64
		)
		if err := rows.Scan(&id, &nanos); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, persistence.Entry{StudyID: id, UpdatedAt: time.Unix(0, nanos).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}
	return out, nil
}

// Delete implements persistence.Store.
func (s *Store) Delete(ctx context.Context, studyID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trials WHERE study_id = ?`, studyID)
	if err != nil {
		return false, fmt.Errorf("delete trial %s: %w", studyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete trial %s: %w", studyID, err)
	}
	return n > 0, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
