// Package artifact records uploaded files in trial documents.
package artifact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"trialcore/pkg/document"
)

var (
	ErrMalformedURL         = errors.New("malformed object url")
	ErrRecordNotFound       = errors.New("no record matches artifact")
	ErrAmbiguousRecord      = errors.New("more than one record matches artifact")
	ErrIdentifierMismatch   = errors.New("record identifiers do not match object url")
	ErrUnsupportedSubsystem = errors.New("unsupported subsystem")
	ErrPlaceholderNotFound  = errors.New("upload placeholder not found")
	ErrAmbiguousPlaceholder = errors.New("upload placeholder is not unique")
)

// CategoryAssay is the artifact category of files uploaded for assays.
const CategoryAssay = "Assay Artifact from CIMAC"

// PlaceholderField names the member holding a placeholder token.
const PlaceholderField = "upload_placeholder"

// URLParts are the segments of "org/participant/sample/aliquot/subsystem/file".
type URLParts struct {
	Org         string
	Participant string
	Sample      string
	Aliquot     string
	Subsystem   string
	FileName    string
}

// ParseURL splits an object url into its six segments.
func ParseURL(objectURL string) (URLParts, error) {
	seg := strings.Split(objectURL, "/")
	if len(seg) != 6 {
		return URLParts{}, fmt.Errorf("%w: %q has %d segments, want 6", ErrMalformedURL, objectURL, len(seg))
	}
	for i, s := range seg {
		if s == "" {
			return URLParts{}, fmt.Errorf("%w: %q has an empty segment at %d", ErrMalformedURL, objectURL, i)
		}
	}
	return URLParts{Org: seg[0], Participant: seg[1], Sample: seg[2], Aliquot: seg[3], Subsystem: seg[4], FileName: seg[5]}, nil
}

func (p URLParts) String() string {
	return strings.Join([]string{p.Org, p.Participant, p.Sample, p.Aliquot, p.Subsystem, p.FileName}, "/")
}

// Record is the document form of an uploaded file.
type Record struct {
	Category  string
	ObjectURL string
	FileName  string
	Size      int64
	MD5       string
	Uploaded  string
}

// Object renders the record as a document node.
func (r Record) Object() document.Object {
	return document.Object{
		"artifact_category":  r.Category,
		"object_url":         r.ObjectURL,
		"file_name":          r.FileName,
		"file_size_bytes":    r.Size,
		"md5_hash":           r.MD5,
		"uploaded_timestamp": r.Uploaded,
	}
}

// Upload describes one file written to blob storage.
type Upload struct {
	URL         string
	Size        int64
	MD5         string
	Timestamp   time.Time
	Placeholder string
}

// Record converts the upload into an assay artifact record.
func (u Upload) Record() (Record, error) {
	parts, err := ParseURL(u.URL)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Category:  CategoryAssay,
		ObjectURL: u.URL,
		FileName:  parts.FileName,
		Size:      u.Size,
		MD5:       u.MD5,
		Uploaded:  u.Timestamp.UTC().Format(time.RFC3339),
	}, nil
}

// Handler attaches a record to the document of one subsystem. doc is owned
// by the caller and may be modified in place.
type Handler interface {
	Attach(doc document.Object, parts URLParts, rec Record) error
}

// Merger dispatches artifact merges to subsystem handlers.
type Merger struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMerger returns a merger with the wes subsystem registered.
func NewMerger() *Merger {
	m := &Merger{handlers: map[string]Handler{}}
	m.Register("wes", RecordHandler{Scope: "/assays/wes"})
	return m
}

// Register installs or replaces the handler for a subsystem.
func (m *Merger) Register(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Subsystems lists registered handler names.
func (m *Merger) Subsystems() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		out = append(out, k)
	}
	return out
}

func (m *Merger) handler(subsystem string) (Handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[subsystem]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSubsystem, subsystem)
	}
	return h, nil
}

// MergeArtifact returns a copy of doc with the file at objectURL recorded on
// its matching record. doc is not modified.
func (m *Merger) MergeArtifact(doc document.Object, subsystem, objectURL string, size int64, timestamp, md5 string) (document.Object, error) {
	out := document.CloneObject(doc)
	rec := Record{Category: CategoryAssay, ObjectURL: objectURL, Size: size, MD5: md5, Uploaded: timestamp}
	if err := m.attach(out, subsystem, rec); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeArtifacts records every upload or none of them.
func (m *Merger) MergeArtifacts(doc document.Object, subsystem string, uploads []Upload) (document.Object, error) {
	out := document.CloneObject(doc)
	for i, u := range uploads {
		rec, err := u.Record()
		if err != nil {
			return nil, fmt.Errorf("upload %d: %w", i, err)
		}
		if err := m.attach(out, subsystem, rec); err != nil {
			return nil, fmt.Errorf("upload %d (%s): %w", i, u.URL, err)
		}
	}
	return out, nil
}

func (m *Merger) attach(doc document.Object, subsystem string, rec Record) error {
	parts, err := ParseURL(rec.ObjectURL)
	if err != nil {
		return err
	}
	if parts.Subsystem != subsystem {
		return fmt.Errorf("%w: %q is not a %s url", ErrMalformedURL, rec.ObjectURL, subsystem)
	}
	h, err := m.handler(subsystem)
	if err != nil {
		return err
	}
	rec.FileName = parts.FileName
	return h.Attach(doc, parts, rec)
}

// LinkPlaceholder returns a copy of doc in which the object holding the
// placeholder token is replaced by rec. The token must occur exactly once.
func LinkPlaceholder(doc document.Object, token string, rec Record) (document.Object, error) {
	var hits []document.Match
	for _, m := range document.FindKey(doc, PlaceholderField) {
		if s, ok := m.Value.(string); ok && s == token {
			hits = append(hits, m)
		}
	}
	switch {
	case len(hits) == 0:
		return nil, fmt.Errorf("%w: %q", ErrPlaceholderNotFound, token)
	case len(hits) > 1:
		return nil, fmt.Errorf("%w: %q at %d locations", ErrAmbiguousPlaceholder, token, len(hits))
	}
	out := document.CloneObject(doc)
	if err := document.Set(out, document.FormatPointer(hits[0].Parent()), rec.Object()); err != nil {
		return nil, fmt.Errorf("link placeholder %q: %w", token, err)
	}
	return out, nil
}
