package prism

import (
	"fmt"
	"strings"

	"trialcore/internal/template"
	"trialcore/pkg/document"
)

// Identifier members looked up in a data object to build storage keys.
const (
	ParticipantIDField = "cimac_participant_id"
	SampleIDField      = "cimac_sample_id"
	AliquotIDField     = "cimac_aliquot_id"
)

// PlaceholderField is the member an artifact field's placeholder token is
// written to, below the field's merge pointer.
const PlaceholderField = "upload_placeholder"

// FileDescriptor describes one local file referenced by an artifact cell.
type FileDescriptor struct {
	TemplateKey string
	LocalPath   string
	Field       *template.FieldDef
	// StorageKey is "/<participant>/<sample>/<aliquot>/<assay>/<field>"; the
	// leading organization segment is left empty.
	StorageKey  string
	Placeholder string
}

// ObjectURL prefixes the storage key with an organization segment.
func (f FileDescriptor) ObjectURL(org string) string {
	return org + f.StorageKey
}

// Lookup resolves column keys to field definitions.
type Lookup interface {
	Lookup(key string) (*template.FieldDef, bool)
}

// Processor applies single cells to a document.
type Processor struct {
	Assay string
	Env   template.Env
}

// ProcessProperty coerces raw per the key's field definition and writes it at
// the field's merge pointer relative to cur. Artifact fields write a
// placeholder token instead and yield a FileDescriptor. Empty cells are
// skipped once the key is known.
func (p *Processor) ProcessProperty(key string, raw any, lookup Lookup, cur document.Cursor) (*FileDescriptor, error) {
	field, ok := lookup.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if isEmpty(raw) {
		return nil, nil
	}
	val, err := field.Coerce(raw, p.Env)
	if err != nil {
		return nil, &CoercionError{Key: key, Value: raw, Type: field.Coercion, Err: err}
	}

	pointer := field.MergePointer
	if field.IsArtifact() {
		pointer = pointer.Append(PlaceholderField)
	}
	if err := cur.Set(pointer.String(), val); err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	if !field.IsArtifact() {
		return nil, nil
	}

	node, err := cur.Node()
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}
	ids := make([]string, 0, 3)
	for _, name := range []string{ParticipantIDField, SampleIDField, AliquotIDField} {
		id, err := firstIdentifier(node, name)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		ids = append(ids, id)
	}
	storageKey := "/" + strings.Join(append(ids, p.Assay, field.FieldName()), "/")
	local, _ := raw.(string)
	return &FileDescriptor{
		TemplateKey: key,
		LocalPath:   local,
		Field:       field,
		StorageKey:  storageKey,
		Placeholder: fmt.Sprint(val),
	}, nil
}

// firstIdentifier takes the first depth-first match; row-local identifiers
// are not checked for uniqueness.
func firstIdentifier(node any, name string) (string, error) {
	m, ok := document.First(document.FindKey(node, name))
	if !ok || m.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingIdentifier, name)
	}
	id := strings.TrimSpace(fmt.Sprint(m.Value))
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %s has unusable value %q", ErrMissingIdentifier, name, id)
	}
	return id, nil
}

func isEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}
