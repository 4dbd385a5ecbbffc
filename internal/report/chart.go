package report

import (
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/epifield/outbreak-cli/internal/model"
)

// WriteChart renders a horizontal bar chart of odds ratios with error
// bars spanning each confidence interval and a dashed reference line
// at OR = 1, saved to path (format inferred from the extension).
func WriteChart(summaries []model.FoodSummary, path string) error {
	rows := ChartRows(summaries)
	if len(rows) == 0 {
		return eris.New("report: no summary rows to chart")
	}

	p := plot.New()
	p.Title.Text = "Food exposure odds ratios (matched pairs)"
	p.X.Label.Text = "Odds ratio"

	ors := make(plotter.Values, len(rows))
	labels := make([]string, len(rows))
	for i, s := range rows {
		ors[i] = s.Result.OddsRatio
		labels[i] = s.Label
	}

	bars, err := plotter.NewBarChart(ors, vg.Points(10))
	if err != nil {
		return eris.Wrap(err, "report: build bar chart")
	}
	bars.Horizontal = true
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(labels...)

	errBars, err := plotter.NewXErrorBars(orPoints(rows))
	if err != nil {
		return eris.Wrap(err, "report: build error bars")
	}
	p.Add(errBars)

	ref, err := plotter.NewLine(plotter.XYs{
		{X: 1, Y: -0.5},
		{X: 1, Y: float64(len(rows)) - 0.5},
	})
	if err != nil {
		return eris.Wrap(err, "report: build reference line")
	}
	ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(ref)
	p.Legend.Add("OR = 1", ref)
	p.Legend.Top = true

	if err := p.Save(7*vg.Inch, vg.Length(len(rows))*20+2*vg.Inch, path); err != nil {
		return eris.Wrap(err, "report: save chart")
	}
	return nil
}

// ChartRows returns the summaries in chart order: descending odds
// ratio, so the strongest association draws at the top of the chart.
// Table order (ascending) is left untouched.
func ChartRows(summaries []model.FoodSummary) []model.FoodSummary {
	rows := make([]model.FoodSummary, len(summaries))
	copy(rows, summaries)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Result.OddsRatio != rows[j].Result.OddsRatio {
			return rows[i].Result.OddsRatio > rows[j].Result.OddsRatio
		}
		return rows[i].Label < rows[j].Label
	})
	return rows
}

// orPoints adapts summary rows for plotter.NewXErrorBars: the point is
// (odds ratio, row index) and the X errors span the confidence interval.
type orPoints []model.FoodSummary

func (o orPoints) Len() int { return len(o) }

func (o orPoints) XY(i int) (float64, float64) {
	return o[i].Result.OddsRatio, float64(i)
}

func (o orPoints) XError(i int) (float64, float64) {
	r := o[i].Result
	low := r.OddsRatio - r.CILower
	high := r.CIUpper - r.OddsRatio
	if low < 0 {
		low = 0
	}
	if high < 0 {
		high = 0
	}
	return low, high
}

var _ interface {
	plotter.XYer
	plotter.XErrorer
} = orPoints(nil)
