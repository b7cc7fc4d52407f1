package workbook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MarkerWorksheet names the worksheet of a CSV file. It must precede every
// other marked row.
const MarkerWorksheet = "#worksheet"

// ReadCSV reads one worksheet of marked rows. Empty cells become nil.
func ReadCSV(name string, r io.Reader) (*Workbook, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var rows [][]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), MarkerWorksheet) {
			if len(rows) > 0 {
				return nil, fmt.Errorf("%w: %s row after content", ErrMalformed, MarkerWorksheet)
			}
			if len(rec) < 2 || strings.TrimSpace(rec[1]) == "" {
				return nil, fmt.Errorf("%w: %s row without a name", ErrMalformed, MarkerWorksheet)
			}
			name = strings.TrimSpace(rec[1])
			continue
		}
		row := make([]any, len(rec))
		for i, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				row[i] = cell
			}
		}
		rows = append(rows, row)
	}
	ws, err := FromRows(name, rows)
	if err != nil {
		return nil, err
	}
	return New(ws), nil
}
