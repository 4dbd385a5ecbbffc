package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epifield/outbreak-cli/internal/clogit"
	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/study"
)

// rowsFor expands per-pair exposures into the long table rows the
// reshape stage would produce for one food.
func rowsFor(food string, pairs []clogit.Pair) []model.ExposureRow {
	rows := make([]model.ExposureRow, 0, 2*len(pairs))
	for i, p := range pairs {
		rows = append(rows,
			model.ExposureRow{Stratum: i + 1, Case: true, Food: food, Value: p.Case},
			model.ExposureRow{Stratum: i + 1, Case: false, Food: food, Value: p.Control},
		)
	}
	return rows
}

func discordantPairs(caseExposed, controlExposed int) []clogit.Pair {
	var pairs []clogit.Pair
	for i := 0; i < caseExposed; i++ {
		pairs = append(pairs, clogit.Pair{Case: model.ExposureYes, Control: model.ExposureNo})
	}
	for i := 0; i < controlExposed; i++ {
		pairs = append(pairs, clogit.Pair{Case: model.ExposureNo, Control: model.ExposureYes})
	}
	return pairs
}

func testDefinition(foods ...study.Food) study.Definition {
	return study.Definition{
		Name:          "test-study",
		ExpectedPairs: 12,
		Foods:         foods,
		Codes:         study.CodeMapping{Eaten: 1, NotEaten: 0, Unsure: 8, Missing: 9},
	}
}

func TestRun_FitsEachFood(t *testing.T) {
	def := testDefinition(
		study.Food{Column: "rice", Label: "Rice"},
		study.Food{Column: "milk", Label: "Milk"},
	)

	ricePairs := append(discordantPairs(8, 2),
		clogit.Pair{Case: model.ExposureYes, Control: model.ExposureYes},
		clogit.Pair{Case: model.ExposureYes, Control: model.ExposureYes},
	)
	milkPairs := append(discordantPairs(3, 3),
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
		clogit.Pair{Case: model.ExposureNo, Control: model.ExposureNo},
	)

	rows := append(rowsFor("rice", ricePairs), rowsFor("milk", milkPairs)...)

	summaries, err := New(def, Config{}).Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Ascending odds ratio: milk (OR 1) before rice (OR 4).
	milk, rice := summaries[0], summaries[1]
	assert.Equal(t, "milk", milk.Food)
	assert.Equal(t, "Rice", rice.Label)

	assert.Equal(t, model.ResultFitted, rice.Result.Kind)
	assert.InDelta(t, 4.0, rice.Result.OddsRatio, 1e-7)
	assert.InDelta(t, 1.0, milk.Result.OddsRatio, 1e-7)

	assert.Equal(t, model.ArmCounts{Exposed: 10, Total: 12, Percent: 0.83}, rice.Cases)
	assert.Equal(t, model.ArmCounts{Exposed: 4, Total: 12, Percent: 0.33}, rice.Controls)
	assert.Equal(t, model.ArmCounts{Exposed: 3, Total: 12, Percent: 0.25}, milk.Cases)
}

func TestRun_SubstitutesCorrectionOnSeparation(t *testing.T) {
	def := testDefinition(study.Food{Column: "custard", Label: "Custard"})
	def.Corrections = []study.Correction{{
		Food:      "custard",
		OddsRatio: 18.6,
		CILower:   3.94,
		CIUpper:   176.2,
		PValue:    0.0001,
		Source:    "computed externally",
	}}

	// Every discordant pair has the case exposed, so the fit diverges.
	rows := rowsFor("custard", discordantPairs(9, 0))

	summaries, err := New(def, Config{}).Run(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	res := summaries[0].Result
	assert.Equal(t, model.ResultOverridden, res.Kind)
	assert.True(t, res.Overridden())
	assert.Equal(t, 18.6, res.OddsRatio)
	assert.Equal(t, 3.94, res.CILower)
	assert.Equal(t, 176.2, res.CIUpper)
	assert.Equal(t, 0.0001, res.PValue)
	assert.Equal(t, "computed externally", res.Source)
}

func TestRun_SeparationWithoutCorrection(t *testing.T) {
	def := testDefinition(study.Food{Column: "oysters", Label: "Oysters"})
	rows := rowsFor("oysters", discordantPairs(7, 0))

	_, err := New(def, Config{}).Run(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no correction is defined")
}

func TestRun_MissingValuesStayOutOfCounts(t *testing.T) {
	def := testDefinition(study.Food{Column: "ham", Label: "Ham"})

	pairs := append(discordantPairs(4, 2),
		clogit.Pair{Case: model.ExposureMissing, Control: model.ExposureYes},
	)
	rows := rowsFor("ham", pairs)

	summaries, err := New(def, Config{}).Run(context.Background(), rows)
	require.NoError(t, err)

	ham := summaries[0]
	assert.Equal(t, model.ArmCounts{Exposed: 4, Total: 6, Percent: 0.67}, ham.Cases)
	assert.Equal(t, model.ArmCounts{Exposed: 3, Total: 7, Percent: 0.43}, ham.Controls)
}

func TestRun_NoRowsForDefinedFood(t *testing.T) {
	def := testDefinition(
		study.Food{Column: "rice", Label: "Rice"},
		study.Food{Column: "cake", Label: "Cake"},
	)
	rows := rowsFor("rice", discordantPairs(5, 3))

	_, err := New(def, Config{}).Run(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no exposure rows for food cake")
}

func TestRun_Deterministic(t *testing.T) {
	def := testDefinition(
		study.Food{Column: "rice", Label: "Rice"},
		study.Food{Column: "milk", Label: "Milk"},
		study.Food{Column: "cake", Label: "Cake"},
	)

	var rows []model.ExposureRow
	rows = append(rows, rowsFor("rice", discordantPairs(6, 2))...)
	rows = append(rows, rowsFor("milk", discordantPairs(3, 4))...)
	rows = append(rows, rowsFor("cake", discordantPairs(5, 5))...)

	a := New(def, Config{Concurrency: 3})
	first, err := a.Run(context.Background(), rows)
	require.NoError(t, err)
	second, err := a.Run(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.LessOrEqual(t, first[i-1].Result.OddsRatio, first[i].Result.OddsRatio)
	}
}
