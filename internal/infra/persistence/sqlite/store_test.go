package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"trialcore/internal/persistence"
	"trialcore/pkg/document"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "nested", "trials.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTripKeepsNumbers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	doc := document.Object{
		"lead_organization_study_id": "10021",
		"participants": []any{map[string]any{
			"cimac_participant_id": "CTTTP01",
			"enrollment_age":       json.Number("62"),
		}},
	}
	if err := s.Put(ctx, "10021", doc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "10021")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !document.Equal(doc, got) {
		t.Fatalf("round trip mismatch: %v", got)
	}
	age, _ := document.Get(got, "/participants/0/enrollment_age")
	if _, ok := age.(json.Number); !ok {
		t.Fatalf("expected json.Number, got %T", age)
	}
}

func TestStoreUpsertListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "", document.Object{}); err == nil {
		t.Fatalf("expected empty id error")
	}
	for _, id := range []string{"20001", "10021", "10021"} {
		if err := s.Put(ctx, id, document.Object{"lead_organization_study_id": id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].StudyID != "10021" || list[1].StudyID != "20001" {
		t.Fatalf("unexpected list %+v", list)
	}
	if !list[0].UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected updated_at %v", list[0].UpdatedAt)
	}
	ok, err := s.Delete(ctx, "10021")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, "10021")
	if err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trials.db")
	s, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Put(ctx, "10021", document.Object{"lead_organization_study_id": "10021"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %s", reopened.Path())
	}
	if _, err := reopened.Get(ctx, "10021"); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}
