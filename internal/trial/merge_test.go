package trial

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialcore/internal/merge"
	"trialcore/internal/schema"
	"trialcore/pkg/document"
)

func trialDoc(studyID string, participants ...map[string]any) document.Object {
	ps := make([]any, 0, len(participants))
	for _, p := range participants {
		ps = append(ps, p)
	}
	return document.Object{"lead_organization_study_id": studyID, "participants": ps}
}

func participant(id, cohort string) map[string]any {
	p := map[string]any{"cimac_participant_id": id}
	if cohort != "" {
		p["cohort_name"] = cohort
	}
	return p
}

func TestMergeTrial(t *testing.T) {
	target := trialDoc("10021", participant("CTTTP01", "Arm A"))
	patch := trialDoc("10021", participant("CTTTP02", ""), participant("CTTTP01", "Arm B"))
	patch["short_title"] = "WES pilot"

	targetBefore := document.CloneObject(target)
	patchBefore := document.CloneObject(patch)

	out, err := MergeTrial(patch, target)
	require.NoError(t, err)

	assert.Equal(t, "WES pilot", out["short_title"])
	ps := out["participants"].([]any)
	require.Len(t, ps, 2, spew.Sdump(out))
	assert.Equal(t, "CTTTP01", ps[0].(map[string]any)["cimac_participant_id"])
	assert.Equal(t, "Arm B", ps[0].(map[string]any)["cohort_name"])
	assert.Equal(t, "CTTTP02", ps[1].(map[string]any)["cimac_participant_id"])

	assert.True(t, document.Equal(targetBefore, target), "target mutated")
	assert.True(t, document.Equal(patchBefore, patch), "patch mutated")
}

func TestMergeTrialIsIdempotent(t *testing.T) {
	target := trialDoc("10021", participant("CTTTP01", "Arm A"))
	patch := trialDoc("10021", participant("CTTTP02", "Arm B"))

	once, err := MergeTrial(patch, target)
	require.NoError(t, err)
	twice, err := MergeTrial(patch, once)
	require.NoError(t, err)
	assert.True(t, document.Equal(once, twice), spew.Sdump(once, twice))
}

func TestMergeTrialIdentityMismatch(t *testing.T) {
	target := trialDoc("10021", participant("CTTTP01", ""))
	patch := trialDoc("20001", participant("CTTTP02", ""))
	before := document.CloneObject(target)

	_, err := MergeTrial(patch, target)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIdentityMismatch))
	var idErr *IdentityError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, StudyIDField, idErr.Field)
	assert.True(t, document.Equal(before, target))
}

func TestMergeTrialRejectsInvalidInputs(t *testing.T) {
	valid := trialDoc("10021")
	cases := []struct {
		name   string
		patch  document.Object
		target document.Object
		want   error
	}{
		{"patch with unknown field", document.Object{"lead_organization_study_id": "10021", "bogus": true}, valid, ErrInvalidPatch},
		{"target without study id", valid, document.Object{"short_title": "x"}, ErrInvalidTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MergeTrial(tc.patch, tc.target)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err.Error())
			var verr *schema.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func singleParticipantRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(fstest.MapFS{
		"clinical_trial.json": {Data: []byte(`{
			"type": "object",
			"properties": {
				"lead_organization_study_id": {"type": "string", "mergeStrategy": "immutable"},
				"short_title": {"type": "string"},
				"participants": {
					"type": "array",
					"maxItems": 1,
					"mergeStrategy": "arrayMergeById",
					"mergeOptions": {"idRef": "cimac_participant_id"}
				}
			},
			"required": ["lead_organization_study_id"]
		}`)},
	})
	require.NoError(t, err)
	return reg
}

func TestMergerInvalidResult(t *testing.T) {
	m, err := NewMerger(singleParticipantRegistry(t))
	require.NoError(t, err)

	_, err = m.Merge(trialDoc("10021", participant("CTTTP02", "")), trialDoc("10021", participant("CTTTP01", "")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMergeResult))
}

func TestMergerExtraIdentityFields(t *testing.T) {
	m, err := NewMerger(singleParticipantRegistry(t), "short_title", StudyIDField)
	require.NoError(t, err)
	assert.Equal(t, []string{StudyIDField, "short_title"}, m.IdentityFields())

	target := trialDoc("10021")
	target["short_title"] = "A"
	patch := trialDoc("10021")
	patch["short_title"] = "B"
	_, err = m.Merge(patch, target)
	var idErr *IdentityError
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, "short_title", idErr.Field)
}

func TestMergerImmutableConflict(t *testing.T) {
	reg, err := schema.NewRegistry(fstest.MapFS{
		"clinical_trial.json": {Data: []byte(`{
			"type": "object",
			"properties": {
				"lead_organization_study_id": {"type": "string"},
				"phase": {"type": "string", "mergeStrategy": "immutable"}
			},
			"required": ["lead_organization_study_id"]
		}`)},
	})
	require.NoError(t, err)
	m, err := NewMerger(reg)
	require.NoError(t, err)

	target := document.Object{"lead_organization_study_id": "10021", "phase": "II"}
	patch := document.Object{"lead_organization_study_id": "10021", "phase": "III"}
	_, err = m.Merge(patch, target)
	assert.True(t, errors.Is(err, merge.ErrConflict), spew.Sdump(err))
}

func TestStudyID(t *testing.T) {
	id, err := StudyID(trialDoc("10021"))
	require.NoError(t, err)
	assert.Equal(t, "10021", id)
	for _, doc := range []document.Object{{}, {StudyIDField: ""}, {StudyIDField: 10021}} {
		_, err := StudyID(doc)
		assert.ErrorIs(t, err, ErrMissingStudyID)
	}
}
