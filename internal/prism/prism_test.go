package prism

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialcore/internal/merge"
	"trialcore/internal/schema"
	"trialcore/internal/template"
	"trialcore/pkg/document"
)

type workbook []Worksheet

func (w workbook) Worksheets() []Worksheet { return w }

func sequence() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ph-%d", n)
	}
}

func wesTemplate(t *testing.T) *template.Template {
	t.Helper()
	tpl, err := template.Builtin("wes", nil)
	require.NoError(t, err)
	return tpl
}

func rules(t *testing.T) RuleSource {
	t.Helper()
	reg, err := schema.Default()
	require.NoError(t, err)
	return reg
}

var wesHeader = []string{"cimac participant id", "cimac sample id", "cimac aliquot id", "forward fastq", "reverse fastq", "mean coverage"}

func wesSheet() Worksheet {
	return Worksheet{
		Name: "WES",
		Preamble: []PreambleRow{
			{Key: "Protocol identifier", Value: "10021"},
			{Key: "assay run id", Value: "run-1"},
			{Key: "assay creator", Value: "DFCI"},
			{Key: "sequencing date", Value: "2024/01/02"},
			{Key: "paired end reads", Value: "yes"},
			{Key: "read length", Value: "150"},
			{Key: "library kit lot", Value: ""},
		},
		Header: wesHeader,
		Data: [][]any{
			{"CTTTP01", "CTTTP01A1.00", "CTTTP01A1.01", "a_R1.fastq.gz", "a_R2.fastq.gz", "61.5"},
			{"CTTTP02", "CTTTP02A1.00", "CTTTP02A1.01", "b_R1.fastq.gz", "b_R2.fastq.gz", nil},
		},
	}
}

func TestPrismifyWES(t *testing.T) {
	res, err := Prismify(workbook{wesSheet()}, wesTemplate(t), Options{Rules: rules(t), NewPlaceholder: sequence()})
	require.NoError(t, err)

	doc := res.Document
	assert.Equal(t, "10021", doc["lead_organization_study_id"])

	batch, err := document.Get(doc, "/assays/wes/0")
	require.NoError(t, err)
	b := batch.(map[string]any)
	assert.Equal(t, "run-1", b["assay_run_id"])
	assert.Equal(t, "DFCI", b["assay_creator"])
	assert.Equal(t, "2024-01-02", b["sequencing_date"])
	assert.Equal(t, true, b["paired_end_reads"])
	assert.Equal(t, int64(150), b["read_length"])
	assert.NotContains(t, b, "library_kit_lot")

	records := b["records"].([]any)
	require.Len(t, records, 2)
	first := records[0].(map[string]any)
	assert.Equal(t, "CTTTP01A1.01", first["cimac_aliquot_id"])
	assert.Equal(t, 61.5, first["mean_coverage"])
	second := records[1].(map[string]any)
	assert.NotContains(t, second, "mean_coverage")

	ph, err := document.Get(doc, "/assays/wes/0/records/0/files/fastq_1/upload_placeholder")
	require.NoError(t, err)
	assert.Equal(t, "ph-1", ph)
	ph, err = document.Get(doc, "/assays/wes/0/records/1/files/fastq_2/upload_placeholder")
	require.NoError(t, err)
	assert.Equal(t, "ph-4", ph)

	require.Len(t, res.Files, 4)
	assert.Equal(t, "/CTTTP01/CTTTP01A1.00/CTTTP01A1.01/wes/fastq_1", res.Files[0].StorageKey)
	assert.Equal(t, "a_R1.fastq.gz", res.Files[0].LocalPath)
	assert.Equal(t, "forward fastq", res.Files[0].TemplateKey)
	assert.Equal(t, "ph-1", res.Files[0].Placeholder)
	assert.Equal(t, "/CTTTP02/CTTTP02A1.00/CTTTP02A1.01/wes/fastq_2", res.Files[3].StorageKey)
	assert.Equal(t, "10021/CTTTP02/CTTTP02A1.00/CTTTP02A1.01/wes/fastq_2", res.Files[3].ObjectURL("10021"))

	reg, err := schema.Default()
	require.NoError(t, err)
	s, err := reg.Load(schema.ClinicalTrial)
	require.NoError(t, err)
	require.NoError(t, s.Validate(doc))
}

func TestPrismifyArtifactBeforeIdentifiers(t *testing.T) {
	sheet := Worksheet{
		Name:   "WES",
		Header: []string{"forward fastq", "cimac participant id", "cimac sample id", "cimac aliquot id"},
		Data:   [][]any{{"x.fastq", "P1", "S1", "A1"}},
	}
	res, err := Prismify(workbook{sheet}, wesTemplate(t), Options{Rules: rules(t), NewPlaceholder: sequence()})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/P1/S1/A1/wes/fastq_1", res.Files[0].StorageKey)
}

func TestPrismifyDuplicateRowsMerge(t *testing.T) {
	sheet := Worksheet{
		Name:   "WES",
		Header: []string{"cimac participant id", "cimac sample id", "cimac aliquot id", "mean coverage"},
		Data: [][]any{
			{"P1", "S1", "A1", "10"},
			{"P1", "S1", "A1", "10"},
		},
	}
	res, err := Prismify(workbook{sheet}, wesTemplate(t), Options{Rules: rules(t)})
	require.NoError(t, err)
	records, err := document.Get(res.Document, "/assays/wes/0/records")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPrismifyConflictingRows(t *testing.T) {
	sheet := Worksheet{
		Name:   "WES",
		Header: []string{"cimac participant id", "cimac sample id", "cimac aliquot id", "mean coverage"},
		Data: [][]any{
			{"P1", "S1", "A1", "10"},
			{"P1", "S1", "A1", "11"},
		},
	}
	_, err := Prismify(workbook{sheet}, wesTemplate(t), Options{Rules: rules(t)})
	require.ErrorIs(t, err, merge.ErrConflict)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2, rowErr.Row)
	assert.Equal(t, "data", rowErr.Section)
}

func TestPrismifyRepeatedArtifact(t *testing.T) {
	header := []string{"cimac participant id", "cimac sample id", "cimac aliquot id", "forward fastq"}
	tests := []struct {
		name string
		data [][]any
	}{
		{"different files", [][]any{{"P1", "S1", "A1", "a.fastq"}, {"P1", "S1", "A1", "b.fastq"}}},
		{"same file", [][]any{{"P1", "S1", "A1", "a.fastq"}, {"P1", "S1", "A1", "a.fastq"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet := Worksheet{Name: "WES", Header: header, Data: tt.data}
			_, err := Prismify(workbook{sheet}, wesTemplate(t), Options{Rules: rules(t), NewPlaceholder: sequence()})
			require.ErrorIs(t, err, ErrDuplicateArtifact)
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, 2, rowErr.Row)
			assert.ErrorContains(t, err, "/P1/S1/A1/wes/fastq_1")
		})
	}

	sheet := Worksheet{Name: "WES", Header: header, Data: [][]any{
		{"P1", "S1", "A1", "a.fastq"},
		{"P1", "S1", "A2", "b.fastq"},
	}}
	res, err := Prismify(workbook{sheet}, wesTemplate(t), Options{Rules: rules(t), NewPlaceholder: sequence()})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	for _, fd := range res.Files {
		hits := document.FindValue(res.Document, fd.Placeholder)
		assert.Len(t, hits, 1, fd.Placeholder)
	}
}

func TestPrismifyFailures(t *testing.T) {
	tpl := wesTemplate(t)
	tests := []struct {
		name    string
		sheet   Worksheet
		opts    Options
		wantErr error
	}{
		{
			name:    "unknown column",
			sheet:   Worksheet{Name: "WES", Header: []string{"shoe size"}, Data: [][]any{{"9"}}},
			wantErr: ErrUnknownKey,
		},
		{
			name:    "unknown preamble key",
			sheet:   Worksheet{Name: "WES", Preamble: []PreambleRow{{Key: "operator", Value: "x"}}},
			wantErr: ErrUnknownKey,
		},
		{
			name:    "long row",
			sheet:   Worksheet{Name: "WES", Header: []string{"cimac participant id"}, Data: [][]any{{"P1", "extra"}}},
			wantErr: ErrRowShape,
		},
		{
			name:    "artifact without identifiers",
			sheet:   Worksheet{Name: "WES", Header: []string{"cimac participant id", "forward fastq"}, Data: [][]any{{"P1", "x.fastq"}}},
			wantErr: ErrMissingIdentifier,
		},
		{
			name:    "unknown worksheet",
			sheet:   Worksheet{Name: "Olink"},
			wantErr: template.ErrUnknownWorksheet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prismify(workbook{tt.sheet}, tpl, tt.opts)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("bad coercion", func(t *testing.T) {
		sheet := Worksheet{Name: "WES", Preamble: []PreambleRow{{Key: "read length", Value: "long"}}}
		_, err := Prismify(workbook{sheet}, tpl, Options{})
		var cerr *CoercionError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "read length", cerr.Key)
		assert.Equal(t, template.CoerceInteger, cerr.Type)
		require.ErrorIs(t, err, template.ErrCoerce)
	})

	t.Run("unsupported assay", func(t *testing.T) {
		_, err := Prismify(workbook{}, &template.Template{Assay: "olink"}, Options{})
		require.ErrorIs(t, err, ErrUnsupportedAssay)
	})
}

func TestPrismifyEmptyWorkbook(t *testing.T) {
	res, err := Prismify(workbook{{Name: "WES"}}, wesTemplate(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, document.Object{"assays": map[string]any{"wes": []any{map[string]any{}}}}, res.Document)
	assert.Empty(t, res.Files)
}
