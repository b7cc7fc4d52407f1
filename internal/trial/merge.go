// Package trial merges and persists clinical trial documents.
package trial

import (
	"errors"
	"fmt"
	"sync"

	"trialcore/internal/merge"
	"trialcore/internal/schema"
	"trialcore/pkg/document"
)

// StudyIDField identifies a trial document.
const StudyIDField = "lead_organization_study_id"

var (
	ErrIdentityMismatch   = errors.New("trial identity mismatch")
	ErrInvalidPatch       = errors.New("invalid trial patch")
	ErrInvalidTarget      = errors.New("invalid trial document")
	ErrInvalidMergeResult = errors.New("merged trial document is invalid")
	ErrMissingStudyID     = errors.New("trial document has no study id")
)

// IdentityError names the identity field two documents disagree on.
type IdentityError struct {
	Field  string
	Patch  any
	Target any
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s: %s is %v in the patch and %v in the target", ErrIdentityMismatch, e.Field, e.Patch, e.Target)
}

func (e *IdentityError) Unwrap() error { return ErrIdentityMismatch }

// Merger merges trial patches onto stored trial documents.
type Merger struct {
	schema   *schema.Schema
	merger   *merge.Merger
	identity []string
}

// NewMerger compiles the clinical trial schema of reg. Identity fields are
// top level keys that must be equal on both sides; the study id is always
// one of them.
func NewMerger(reg *schema.Registry, identity ...string) (*Merger, error) {
	s, err := reg.Load(schema.ClinicalTrial)
	if err != nil {
		return nil, err
	}
	fields := []string{StudyIDField}
	for _, f := range identity {
		if f != "" && f != StudyIDField {
			fields = append(fields, f)
		}
	}
	return &Merger{
		schema:   s,
		merger:   merge.New(s.Rules(), merge.WithScalarPolicy(merge.HeadWins)),
		identity: fields,
	}, nil
}

// IdentityFields returns the fields compared before merging.
func (m *Merger) IdentityFields() []string {
	out := make([]string, len(m.identity))
	copy(out, m.identity)
	return out
}

// Validate checks doc against the clinical trial schema.
func (m *Merger) Validate(doc document.Object) error {
	return m.schema.Validate(doc)
}

// Merge returns patch merged onto target. Neither input is modified.
func (m *Merger) Merge(patch, target document.Object) (document.Object, error) {
	if err := m.schema.Validate(patch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatch, err)
	}
	if err := m.schema.Validate(target); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	for _, f := range m.identity {
		p, t := patch[f], target[f]
		if !document.Equal(p, t) {
			return nil, &IdentityError{Field: f, Patch: p, Target: t}
		}
	}
	out, err := m.merger.MergeObjects(target, patch)
	if err != nil {
		return nil, err
	}
	if err := m.schema.Validate(out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMergeResult, err)
	}
	return out, nil
}

var (
	defaultOnce   sync.Once
	defaultMerger *Merger
	defaultErr    error
)

// MergeTrial merges patch onto target using the embedded schemas.
func MergeTrial(patch, target document.Object) (document.Object, error) {
	defaultOnce.Do(func() {
		reg, err := schema.Default()
		if err != nil {
			defaultErr = err
			return
		}
		defaultMerger, defaultErr = NewMerger(reg)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultMerger.Merge(patch, target)
}

// StudyID returns the study id of doc.
func StudyID(doc document.Object) (string, error) {
	id, ok := doc[StudyIDField].(string)
	if !ok || id == "" {
		return "", ErrMissingStudyID
	}
	return id, nil
}
