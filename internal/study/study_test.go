package study

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epifield/outbreak-cli/internal/model"
)

func TestDefault_Valid(t *testing.T) {
	def := Default()
	require.NoError(t, def.Validate())
	assert.Equal(t, 36, def.ExpectedPairs)
	assert.Len(t, def.Foods, 20)
}

func TestDefault_CorrectionForCustard(t *testing.T) {
	def := Default()
	corr, ok := def.CorrectionFor("custard")
	require.True(t, ok)
	assert.Equal(t, "custard", corr.Food)
	assert.NotEmpty(t, corr.Source)
	assert.Greater(t, corr.OddsRatio, 1.0)
}

func TestCodeMapping_Decode(t *testing.T) {
	m := CodeMapping{Eaten: 1, NotEaten: 0, Unsure: 8, Missing: 9}

	tests := []struct {
		name string
		code int
		want model.Exposure
	}{
		{"eaten", 1, model.ExposureYes},
		{"not eaten", 0, model.ExposureNo},
		{"unsure collapses to missing", 8, model.ExposureMissing},
		{"missing", 9, model.ExposureMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Decode(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeMapping_DecodeUnknown(t *testing.T) {
	m := CodeMapping{Eaten: 1, NotEaten: 0, Unsure: 8, Missing: 9}
	_, err := m.Decode(7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown survey code 7")
}

func TestCorrectionFor_Unknown(t *testing.T) {
	def := Default()
	_, ok := def.CorrectionFor("rice")
	assert.False(t, ok)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr string
	}{
		{
			"zero pairs",
			func(d *Definition) { d.ExpectedPairs = 0 },
			"expected_pairs must be positive",
		},
		{
			"no foods",
			func(d *Definition) { d.Foods = nil },
			"no foods defined",
		},
		{
			"duplicate food",
			func(d *Definition) { d.Foods = append(d.Foods, Food{Column: "rice", Label: "Rice again"}) },
			"duplicate food column",
		},
		{
			"correction for unknown food",
			func(d *Definition) {
				d.Corrections = []Correction{{Food: "pizza", Source: "somewhere"}}
			},
			`correction for unknown food "pizza"`,
		},
		{
			"correction without source",
			func(d *Definition) {
				d.Corrections = []Correction{{Food: "rice"}}
			},
			"no source",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := Default()
			tt.mutate(&def)
			err := def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	doc := `
name: test-study
expected_pairs: 2
foods:
  - column: rice
    label: Rice
  - column: milk
    label: Milk
codes:
  eaten: 1
  not_eaten: 0
  unsure: 8
  missing: 9
corrections:
  - food: milk
    odds_ratio: 5.0
    ci_lower: 1.1
    ci_upper: 22.0
    p_value: 0.03
    source: external exact fit
`
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-study", def.Name)
	assert.Equal(t, 2, def.ExpectedPairs)
	assert.Equal(t, []string{"rice", "milk"}, def.FoodColumns())

	corr, ok := def.CorrectionFor("milk")
	require.True(t, ok)
	assert.Equal(t, 5.0, corr.OddsRatio)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read definition file")
}

func TestLoad_InvalidDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: broken\nexpected_pairs: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected_pairs must be positive")
}

func TestLabelFor(t *testing.T) {
	def := Default()
	assert.Equal(t, "Potato salad", def.LabelFor("potato_salad"))
	assert.Equal(t, "unknown_col", def.LabelFor("unknown_col"))
}
