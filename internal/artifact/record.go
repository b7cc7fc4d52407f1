package artifact

import (
	"fmt"

	"trialcore/pkg/document"
)

// Identifier members compared against object url segments.
const (
	ParticipantField = "cimac_participant_id"
	SampleField      = "cimac_sample_id"
	AliquotField     = "cimac_aliquot_id"
)

// RecordHandler finds the record carrying the url's aliquot id below Scope
// and writes the artifact at files/<file name> inside it.
type RecordHandler struct {
	Scope string
}

// Attach implements Handler.
func (h RecordHandler) Attach(doc document.Object, parts URLParts, rec Record) error {
	scope, err := document.Get(doc, h.Scope)
	if err != nil {
		return fmt.Errorf("%w: aliquot %q: %v", ErrRecordNotFound, parts.Aliquot, err)
	}
	var hits []document.Match
	for _, m := range document.FindValue(scope, parts.Aliquot) {
		if len(m.Path) > 0 && m.Path[len(m.Path)-1] == AliquotField {
			hits = append(hits, m)
		}
	}
	switch {
	case len(hits) == 0:
		return fmt.Errorf("%w: aliquot %q under %s", ErrRecordNotFound, parts.Aliquot, h.Scope)
	case len(hits) > 1:
		return fmt.Errorf("%w: aliquot %q under %s (%d records)", ErrAmbiguousRecord, parts.Aliquot, h.Scope, len(hits))
	}

	parent, err := document.Get(scope, document.FormatPointer(hits[0].Parent()))
	if err != nil {
		return err
	}
	record, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: aliquot %q is not held by an object", ErrRecordNotFound, parts.Aliquot)
	}
	for _, id := range [][2]string{
		{ParticipantField, parts.Participant},
		{SampleField, parts.Sample},
		{AliquotField, parts.Aliquot},
	} {
		field, want := id[0], id[1]
		if record[field] == nil || fmt.Sprint(record[field]) != want {
			return fmt.Errorf("%w: %s is %v, url has %q", ErrIdentifierMismatch, field, record[field], want)
		}
	}
	return document.Set(record, document.FormatPointer([]string{"files", parts.FileName}), rec.Object())
}
