package survey

import (
	"github.com/rotisserie/eris"

	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/study"
)

// Reshape converts the wide exposure table into long form: one row per
// (participant, food). Row order follows record order then definition
// food order, so the output is deterministic. The reshape is lossless:
// len(out) == len(records) * len(foods), checked before returning.
func Reshape(records []model.SurveyRecord, def study.Definition) ([]model.ExposureRow, error) {
	foods := def.FoodColumns()
	out := make([]model.ExposureRow, 0, len(records)*len(foods))

	for _, r := range records {
		for _, food := range foods {
			v, ok := r.Exposures[food]
			if !ok {
				return nil, eris.Errorf("survey: subject %s has no value for %s", r.SubjectID, food)
			}
			out = append(out, model.ExposureRow{
				Stratum: r.Stratum,
				Case:    r.Case,
				Food:    food,
				Value:   v,
			})
		}
	}

	if want := len(records) * len(foods); len(out) != want {
		return nil, eris.Errorf("survey: reshape produced %d rows, want %d", len(out), want)
	}
	return out, nil
}
