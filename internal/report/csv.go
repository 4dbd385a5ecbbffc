package report

import (
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/epifield/outbreak-cli/internal/model"
)

// csvRow is the flat export shape of one summary row.
type csvRow struct {
	Food            string  `csv:"food"`
	Label           string  `csv:"label"`
	OddsRatio       float64 `csv:"odds_ratio"`
	CILower         float64 `csv:"ci_lower"`
	CIUpper         float64 `csv:"ci_upper"`
	PValue          float64 `csv:"p_value"`
	Kind            string  `csv:"result_kind"`
	Source          string  `csv:"source,omitempty"`
	CasesExposed    int     `csv:"cases_exposed"`
	CasesTotal      int     `csv:"cases_total"`
	CasesPercent    float64 `csv:"cases_percent"`
	ControlsExposed int     `csv:"controls_exposed"`
	ControlsTotal   int     `csv:"controls_total"`
	ControlsPercent float64 `csv:"controls_percent"`
}

// WriteCSV writes the summary rows to a CSV file in table order.
func WriteCSV(summaries []model.FoodSummary, path string) error {
	rows := make([]csvRow, len(summaries))
	for i, s := range summaries {
		rows[i] = csvRow{
			Food:            s.Food,
			Label:           s.Label,
			OddsRatio:       s.Result.OddsRatio,
			CILower:         s.Result.CILower,
			CIUpper:         s.Result.CIUpper,
			PValue:          s.Result.PValue,
			Kind:            string(s.Result.Kind),
			Source:          s.Result.Source,
			CasesExposed:    s.Cases.Exposed,
			CasesTotal:      s.Cases.Total,
			CasesPercent:    s.Cases.Percent,
			ControlsExposed: s.Controls.Exposed,
			ControlsTotal:   s.Controls.Total,
			ControlsPercent: s.Controls.Percent,
		}
	}

	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "report: marshal csv")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "report: write csv")
	}
	return nil
}
