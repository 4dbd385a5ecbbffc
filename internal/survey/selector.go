package survey

import (
	"github.com/rotisserie/eris"

	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/study"
)

// Select decodes the raw survey codes into domain exposure values,
// producing the narrow wide-form table: stratum id, case flag, and one
// decoded exposure per food. Sentinel codes ("not sure" and missing)
// both become ExposureMissing, uniformly across every food column.
func Select(records []RawRecord, def study.Definition) ([]model.SurveyRecord, error) {
	out := make([]model.SurveyRecord, 0, len(records))
	for _, r := range records {
		exposures := make(map[string]model.Exposure, len(r.Codes))
		for col, code := range r.Codes {
			v, err := def.Codes.Decode(code)
			if err != nil {
				return nil, eris.Wrapf(err, "survey: subject %s, column %s", r.SubjectID, col)
			}
			exposures[col] = v
		}
		out = append(out, model.SurveyRecord{
			SubjectID: r.SubjectID,
			PairID:    r.PairID,
			Stratum:   r.Stratum,
			Case:      r.Case,
			Exposures: exposures,
		})
	}
	return out, nil
}
