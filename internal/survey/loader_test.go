package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epifield/outbreak-cli/internal/study"
)

func testDef(pairs int) study.Definition {
	return study.Definition{
		Name:          "test",
		ExpectedPairs: pairs,
		Foods: []study.Food{
			{Column: "rice", Label: "Rice"},
			{Column: "milk", Label: "Milk"},
		},
		Codes: study.CodeMapping{Eaten: 1, NotEaten: 0, Unsure: 8, Missing: 9},
	}
}

func testHeader() []string {
	return []string{"subject_id", "pair_id", "status", "rice", "milk"}
}

func TestClean_Basic(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-102", "P-1", "0", "0", "1"},
		{"S-101", "P-1", "1", "1", "1"},
		{"S-103", "P-2", "1", "1", "0"},
		{"S-104", "P-2", "0", "0", "8"},
	}

	records, err := Clean(rows, testDef(2))
	require.NoError(t, err)
	require.Len(t, records, 4)

	// Sorted by stratum, case before control.
	assert.Equal(t, "S-101", records[0].SubjectID)
	assert.True(t, records[0].Case)
	assert.Equal(t, 1, records[0].Stratum)
	assert.Equal(t, "S-102", records[1].SubjectID)
	assert.False(t, records[1].Case)
	assert.Equal(t, "S-103", records[2].SubjectID)
	assert.Equal(t, 2, records[2].Stratum)

	assert.Equal(t, map[string]int{"rice": 1, "milk": 1}, records[0].Codes)
	assert.Equal(t, map[string]int{"rice": 0, "milk": 8}, records[3].Codes)
}

func TestClean_HeaderNormalization(t *testing.T) {
	rows := [][]string{
		{"Subject ID", "Pair-ID", "Status", "Rice", "MILK"},
		{"S-101", "P-1", "1", "1", "0"},
		{"S-102", "P-1", "0", "0", "0"},
	}

	records, err := Clean(rows, testDef(1))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestClean_ExclusionList(t *testing.T) {
	def := testDef(1)
	def.ExcludeSubjects = []string{"S-103"}
	def.DuplicateControls = []string{"S-104"}

	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "1", "0"},
		{"S-102", "P-1", "0", "0", "0"},
		{"S-103", "P-2", "1", "1", "1"}, // case whose control never responded
		{"S-104", "P-2", "0", "0", "0"}, // entered twice upstream
	}

	records, err := Clean(rows, def)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "S-101", records[0].SubjectID)
	assert.Equal(t, "S-102", records[1].SubjectID)
}

func TestClean_BlankRowSkipped(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "1", "0"},
		{"", "", "", "", ""},
		{"S-102", "P-1", "0", "0", "0"},
	}

	records, err := Clean(rows, testDef(1))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestClean_StratumFromPairSuffix(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "pair_07", "1", "1", "0"},
		{"S-102", "pair_07", "0", "0", "0"},
	}

	records, err := Clean(rows, testDef(1))
	require.NoError(t, err)
	assert.Equal(t, 7, records[0].Stratum)
	assert.Equal(t, 7, records[1].Stratum)
}

func TestClean_SchemaMismatch(t *testing.T) {
	rows := [][]string{
		{"subject_id", "pair_id", "rice"}, // status and milk missing
		{"S-101", "P-1", "1"},
	}

	_, err := Clean(rows, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema mismatch")
	assert.Contains(t, err.Error(), "status")
	assert.Contains(t, err.Error(), "milk")
}

func TestClean_NoDataRows(t *testing.T) {
	_, err := Clean([][]string{testHeader()}, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestClean_TwoCasesInStratum(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "1", "0"},
		{"S-102", "P-1", "1", "0", "0"},
	}

	_, err := Clean(rows, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stratum 1 has 2 cases and 0 controls")
}

func TestClean_WrongPairCount(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "1", "0"},
		{"S-102", "P-1", "0", "0", "0"},
	}

	_, err := Clean(rows, testDef(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 matched pairs after cleaning, want 5")
}

func TestClean_InvalidStatus(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "2", "1", "0"},
	}

	_, err := Clean(rows, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid case/control status")
}

func TestClean_NonNumericAnswer(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "yes", "0"},
	}

	_, err := Clean(rows, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric answer")
}

func TestClean_NoPairSuffix(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "pair-x", "1", "1", "0"},
	}

	_, err := Clean(rows, testDef(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no numeric suffix")
}

func TestClean_EmptyCellIsMissing(t *testing.T) {
	rows := [][]string{
		testHeader(),
		{"S-101", "P-1", "1", "", "1"},
		{"S-102", "P-1", "0", "0", "0"},
	}

	records, err := Clean(rows, testDef(1))
	require.NoError(t, err)
	assert.Equal(t, 9, records[0].Codes["rice"])
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Subject ID", "subject_id"},
		{"pair-id", "pair_id"},
		{"  STATUS ", "status"},
		{"potato_salad", "potato_salad"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}
