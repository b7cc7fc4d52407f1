// Package workbook reads upload workbooks from YAML, JSON or CSV files.
//
// A worksheet is either given in sections:
//
//	worksheets:
//	  WES:
//	    preamble:
//	      - [protocol identifier, "10021"]
//	    header: [cimac participant id, cimac sample id, ...]
//	    data:
//	      - [CTTTP01, CTTTP01A1.00, ...]
//
// or as marked rows, where the first cell of every row says what the row is:
// "#preamble" (key, value), "#header", "#data" or "#skip". CSV files always
// use marked rows.
package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"trialcore/internal/prism"
)

// Row markers.
const (
	MarkerPreamble = "#preamble"
	MarkerHeader   = "#header"
	MarkerData     = "#data"
	MarkerSkip     = "#skip"
)

var (
	ErrMalformed     = errors.New("malformed workbook")
	ErrUnknownMarker = errors.New("unknown row marker")
)

var _ prism.Workbook = (*Workbook)(nil)

// Workbook is an ordered list of worksheets.
type Workbook struct {
	sheets []prism.Worksheet
}

// New wraps already parsed worksheets.
func New(sheets ...prism.Worksheet) *Workbook {
	return &Workbook{sheets: sheets}
}

// Worksheets implements prism.Workbook.
func (w *Workbook) Worksheets() []prism.Worksheet { return w.sheets }

type fileWorkbook struct {
	Worksheets sheetList `yaml:"worksheets"`
}

type fileSheet struct {
	Preamble [][]any `yaml:"preamble"`
	Header   []any   `yaml:"header"`
	Data     [][]any `yaml:"data"`
	Rows     [][]any `yaml:"rows"`
}

// sheetList keeps worksheets in file order.
type sheetList []prism.Worksheet

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *sheetList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: worksheets must be a mapping (line %d)", ErrMalformed, value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		name := value.Content[i].Value
		var fs fileSheet
		if err := value.Content[i+1].Decode(&fs); err != nil {
			return fmt.Errorf("worksheet %q: %w", name, err)
		}
		ws, err := fs.worksheet(name)
		if err != nil {
			return err
		}
		*l = append(*l, ws)
	}
	return nil
}

func (fs fileSheet) worksheet(name string) (prism.Worksheet, error) {
	if len(fs.Rows) > 0 {
		if len(fs.Preamble) > 0 || len(fs.Header) > 0 || len(fs.Data) > 0 {
			return prism.Worksheet{}, fmt.Errorf("%w: worksheet %q mixes rows with sections", ErrMalformed, name)
		}
		return FromRows(name, fs.Rows)
	}
	ws := prism.Worksheet{Name: name, Data: fs.Data}
	for i, row := range fs.Preamble {
		pr, err := preambleRow(row)
		if err != nil {
			return prism.Worksheet{}, fmt.Errorf("worksheet %q preamble row %d: %w", name, i+1, err)
		}
		ws.Preamble = append(ws.Preamble, pr)
	}
	for _, h := range fs.Header {
		ws.Header = append(ws.Header, cellString(h))
	}
	return ws, nil
}

// Parse decodes a YAML or JSON workbook.
func Parse(data []byte) (*Workbook, error) {
	var fw fileWorkbook
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return nil, fmt.Errorf("parse workbook: %w", err)
	}
	return &Workbook{sheets: fw.Worksheets}, nil
}

// ReadFile reads path, choosing the format by extension. A CSV file holds one
// worksheet named after the file unless a "#worksheet" row names it.
func ReadFile(path string) (*Workbook, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return ReadCSV(name, f)
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Parse(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrMalformed, filepath.Ext(path))
	}
}

// FromRows builds a worksheet from marked rows. Blank rows are ignored.
func FromRows(name string, rows [][]any) (prism.Worksheet, error) {
	ws := prism.Worksheet{Name: name}
	for i, row := range rows {
		if blank(row) {
			continue
		}
		marker := strings.ToLower(strings.TrimSpace(cellString(row[0])))
		rest := row[1:]
		switch marker {
		case MarkerSkip:
		case MarkerPreamble:
			if ws.Header != nil {
				return prism.Worksheet{}, fmt.Errorf("%w: worksheet %q row %d: preamble after header", ErrMalformed, name, i+1)
			}
			pr, err := preambleRow(rest)
			if err != nil {
				return prism.Worksheet{}, fmt.Errorf("worksheet %q row %d: %w", name, i+1, err)
			}
			ws.Preamble = append(ws.Preamble, pr)
		case MarkerHeader:
			if ws.Header != nil {
				return prism.Worksheet{}, fmt.Errorf("%w: worksheet %q row %d: second header", ErrMalformed, name, i+1)
			}
			ws.Header = make([]string, 0, len(rest))
			for _, c := range trimTrailingBlanks(rest) {
				ws.Header = append(ws.Header, cellString(c))
			}
		case MarkerData:
			if ws.Header == nil {
				return prism.Worksheet{}, fmt.Errorf("%w: worksheet %q row %d: data before header", ErrMalformed, name, i+1)
			}
			ws.Data = append(ws.Data, trimTrailingBlanks(rest))
		default:
			return prism.Worksheet{}, fmt.Errorf("%w: worksheet %q row %d: %q", ErrUnknownMarker, name, i+1, marker)
		}
	}
	return ws, nil
}

func preambleRow(cells []any) (prism.PreambleRow, error) {
	if len(cells) == 0 || cellString(cells[0]) == "" {
		return prism.PreambleRow{}, fmt.Errorf("%w: preamble row without key", ErrMalformed)
	}
	if len(trimTrailingBlanks(cells)) > 2 {
		return prism.PreambleRow{}, fmt.Errorf("%w: preamble row %q has more than one value", ErrMalformed, cellString(cells[0]))
	}
	pr := prism.PreambleRow{Key: cellString(cells[0])}
	if len(cells) > 1 {
		pr.Value = cells[1]
	}
	return pr, nil
}

// trimTrailingBlanks drops empty cells spreadsheet exports leave at the end
// of a row.
func trimTrailingBlanks(cells []any) []any {
	n := len(cells)
	for n > 0 && isBlank(cells[n-1]) {
		n--
	}
	return cells[:n]
}

func blank(row []any) bool {
	for _, c := range row {
		if !isBlank(c) {
			return false
		}
	}
	return true
}

func isBlank(c any) bool {
	if c == nil {
		return true
	}
	s, ok := c.(string)
	return ok && strings.TrimSpace(s) == ""
}

func cellString(c any) string {
	if c == nil {
		return ""
	}
	if s, ok := c.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(c))
}
