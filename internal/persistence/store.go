// Package persistence defines how trial documents are stored. Backends live
// under internal/infra/persistence.
package persistence

import (
	"context"
	"errors"
	"time"

	"trialcore/pkg/document"
)

// Driver names a trial store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrNotFound is returned for unknown study ids.
var ErrNotFound = errors.New("trial not found")

// Entry summarizes a stored trial.
type Entry struct {
	StudyID   string    `json:"study_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps one document per study id. Documents handed in and out are
// copies owned by the caller.
type Store interface {
	Get(ctx context.Context, studyID string) (document.Object, error)
	// Put inserts or replaces the document of studyID.
	Put(ctx context.Context, studyID string, doc document.Object) error
	// List returns entries ordered by study id.
	List(ctx context.Context) ([]Entry, error)
	// Delete reports whether the study existed.
	Delete(ctx context.Context, studyID string) (bool, error)
	Close() error
}
