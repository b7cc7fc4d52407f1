package prism

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialcore/pkg/document"
)

func TestProcessProperty(t *testing.T) {
	ws, err := wesTemplate(t).Worksheet("WES")
	require.NoError(t, err)
	lookup := ws.Fields()
	proc := &Processor{Assay: "wes"}
	proc.Env.NewPlaceholder = func() string { return "tok" }

	root := document.Object{}
	cur, err := document.At(root).Place("/records/-", document.Object{})
	require.NoError(t, err)

	fd, err := proc.ProcessProperty("cimac participant id", "P1", lookup, cur)
	require.NoError(t, err)
	assert.Nil(t, fd)
	_, err = proc.ProcessProperty("cimac sample id", "S1", lookup, cur)
	require.NoError(t, err)
	_, err = proc.ProcessProperty("cimac aliquot id", "A1", lookup, cur)
	require.NoError(t, err)

	fd, err = proc.ProcessProperty("read group mapping file", "rg.txt", lookup, cur)
	require.NoError(t, err)
	require.NotNil(t, fd)
	assert.Equal(t, "/P1/S1/A1/wes/read_group_mapping_file", fd.StorageKey)
	assert.Equal(t, "tok", fd.Placeholder)
	assert.Equal(t, "rg.txt", fd.LocalPath)

	got, err := cur.Get("0/files/read_group_mapping_file")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{PlaceholderField: "tok"}, got)

	fd, err = proc.ProcessProperty("reverse fastq", "  ", lookup, cur)
	require.NoError(t, err)
	assert.Nil(t, fd)
	_, err = cur.Get("0/files/fastq_2")
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestProcessPropertyIdentifierValues(t *testing.T) {
	ws, err := wesTemplate(t).Worksheet("WES")
	require.NoError(t, err)
	proc := &Processor{Assay: "wes"}

	root := document.Object{}
	cur, err := document.At(root).Place("/records/-", document.Object{
		"cimac_participant_id": "P1",
		"cimac_sample_id":      "S1",
		"cimac_aliquot_id":     "bad/id",
	})
	require.NoError(t, err)
	_, err = proc.ProcessProperty("forward fastq", "x.fastq", ws.Fields(), cur)
	require.ErrorIs(t, err, ErrMissingIdentifier)
}
