// Package prism turns tabular upload workbooks into trial document fragments.
//
// Every worksheet row becomes one data object placed below a copy of the
// worksheet's preamble object; the copies are merged back together so rows
// describing the same record must agree on their scalar values. Preamble rows
// are applied last, relative to the preamble object once it has been attached
// to the document root.
package prism

import (
	"fmt"

	"trialcore/internal/merge"
	"trialcore/internal/template"
	"trialcore/pkg/document"
)

// SupportedAssays lists the assay hints Prismify accepts.
var SupportedAssays = []string{"wes"}

// PreambleRow is one key/value line above a worksheet's table.
type PreambleRow struct {
	Key   string
	Value any
}

// Worksheet is the parsed content of one sheet.
type Worksheet struct {
	Name     string
	Preamble []PreambleRow
	Header   []string
	Data     [][]any
}

// Workbook yields worksheets in file order.
type Workbook interface {
	Worksheets() []Worksheet
}

// RuleSource resolves merge rules for a preamble object schema.
type RuleSource interface {
	Rules(schema string) (*merge.Rule, error)
}

// Options tunes Prismify.
type Options struct {
	// EncryptKey keys fields with the encrypted coercion.
	EncryptKey []byte
	// Rules drives row merging. Nil merges by inference.
	Rules RuleSource
	// NewPlaceholder mints artifact tokens; uuid v4 when nil.
	NewPlaceholder func() string
}

// Result is the document fragment built from a workbook and the local files it
// references, in worksheet, row and column order.
type Result struct {
	Document document.Object
	Files    []FileDescriptor
}

// Prismify builds a document fragment from wb using tpl.
func Prismify(wb Workbook, tpl *template.Template, opts Options) (*Result, error) {
	if !supported(tpl.Assay) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAssay, tpl.Assay)
	}
	proc := &Processor{
		Assay: tpl.Assay,
		Env:   template.Env{EncryptKey: opts.EncryptKey, NewPlaceholder: opts.NewPlaceholder},
	}

	var root any = document.Object{}
	rootCur := document.NewCursor(&root)
	res := &Result{}
	seen := artifactKeys{}
	for _, sheet := range wb.Worksheets() {
		ws, err := tpl.Worksheet(sheet.Name)
		if err != nil {
			return nil, err
		}
		files, err := prismifySheet(proc, rootCur, sheet, ws, opts.Rules, seen)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, files...)
	}
	res.Document = rootCur.Root().(map[string]any)
	return res, nil
}

func prismifySheet(proc *Processor, rootCur document.Cursor, sheet Worksheet, ws *template.Worksheet, rules RuleSource, seen artifactKeys) ([]FileDescriptor, error) {
	var rule *merge.Rule
	if rules != nil {
		r, err := rules.Rules(ws.PreambleObjectSchema)
		if err != nil {
			return nil, fmt.Errorf("worksheet %q: %w", sheet.Name, err)
		}
		rule = r
	}
	merger := merge.New(rule, merge.WithScalarPolicy(merge.MustAgree))
	lookup := ws.Fields()

	var files []FileDescriptor
	preamble := document.Object{}
	for i, row := range sheet.Data {
		if len(row) > len(sheet.Header) {
			return nil, &RowError{Worksheet: sheet.Name, Section: "data", Row: i + 1,
				Err: fmt.Errorf("%w: %d cells, %d columns", ErrRowShape, len(row), len(sheet.Header))}
		}
		copyCur := document.At(document.CloneObject(preamble))
		dataCur, err := copyCur.Place(ws.DataObjectPointer, document.Object{})
		if err != nil {
			return nil, &RowError{Worksheet: sheet.Name, Section: "data", Row: i + 1, Err: err}
		}
		rowFiles, err := processRow(proc, sheet.Header, row, lookup, dataCur)
		if err != nil {
			return nil, &RowError{Worksheet: sheet.Name, Section: "data", Row: i + 1, Err: err}
		}
		merged, err := merger.MergeObjects(preamble, copyCur.Root().(map[string]any))
		if err != nil {
			return nil, &RowError{Worksheet: sheet.Name, Section: "data", Row: i + 1, Err: err}
		}
		if err := seen.add(sheet.Name, "data", i+1, rowFiles); err != nil {
			return nil, &RowError{Worksheet: sheet.Name, Section: "data", Row: i + 1, Err: err}
		}
		preamble = merged
		files = append(files, rowFiles...)
	}

	preambleCur, err := rootCur.Place(ws.PreambleObjectPointer, preamble)
	if err != nil {
		return nil, fmt.Errorf("worksheet %q: attach preamble object: %w", sheet.Name, err)
	}
	for i, row := range sheet.Preamble {
		fd, err := proc.ProcessProperty(row.Key, row.Value, lookup, preambleCur)
		if err != nil {
			return nil, &RowError{Worksheet: sheet.Name, Section: "preamble", Row: i + 1, Err: err}
		}
		if fd != nil {
			if err := seen.add(sheet.Name, "preamble", i+1, []FileDescriptor{*fd}); err != nil {
				return nil, &RowError{Worksheet: sheet.Name, Section: "preamble", Row: i + 1, Err: err}
			}
			files = append(files, *fd)
		}
	}
	return files, nil
}

// artifactKeys remembers where each storage key was first given. Rows for
// the same record merge into one artifact slot, so a second file for a key
// would replace the first placeholder.
type artifactKeys map[string]string

func (k artifactKeys) add(sheet, section string, row int, files []FileDescriptor) error {
	for _, fd := range files {
		if at, ok := k[fd.StorageKey]; ok {
			return fmt.Errorf("%w: %s (%q, first given at %s)", ErrDuplicateArtifact, fd.StorageKey, fd.LocalPath, at)
		}
	}
	for _, fd := range files {
		k[fd.StorageKey] = fmt.Sprintf("worksheet %q %s row %d", sheet, section, row)
	}
	return nil
}

// processRow applies scalar cells before artifact cells so identifier columns
// are in place whatever the column order. Descriptors keep header order.
func processRow(proc *Processor, header []string, row []any, lookup Lookup, cur document.Cursor) ([]FileDescriptor, error) {
	var deferred []int
	for j, raw := range row {
		if f, ok := lookup.Lookup(header[j]); ok && f.IsArtifact() {
			deferred = append(deferred, j)
			continue
		}
		if _, err := proc.ProcessProperty(header[j], raw, lookup, cur); err != nil {
			return nil, err
		}
	}
	var files []FileDescriptor
	for _, j := range deferred {
		fd, err := proc.ProcessProperty(header[j], row[j], lookup, cur)
		if err != nil {
			return nil, err
		}
		if fd != nil {
			files = append(files, *fd)
		}
	}
	return files, nil
}

func supported(assay string) bool {
	for _, a := range SupportedAssays {
		if a == assay {
			return true
		}
	}
	return false
}
