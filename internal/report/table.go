// Package report renders the assembled summary as a text table, a CSV
// export, and an odds-ratio chart.
package report

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/epifield/outbreak-cli/internal/model"
)

// RenderTable formats the summary rows as an aligned text table in the
// order given (the assembler sorts ascending by odds ratio).
// Overridden rows are marked so the substitution is visible in the
// human-readable output, not just the logs.
func RenderTable(summaries []model.FoodSummary) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 2, 4, 2, ' ', 0)

	fmt.Fprintln(w, "FOOD\tOR\t95% CI\tP\tCASES\tCONTROLS\t")
	for _, s := range summaries {
		note := ""
		if s.Result.Overridden() {
			note = "*"
		}
		fmt.Fprintf(w, "%s%s\t%.2f\t(%.2f, %.2f)\t%s\t%d/%d (%.0f%%)\t%d/%d (%.0f%%)\t\n",
			s.Label, note,
			s.Result.OddsRatio,
			s.Result.CILower, s.Result.CIUpper,
			formatP(s.Result.PValue),
			s.Cases.Exposed, s.Cases.Total, s.Cases.Percent*100,
			s.Controls.Exposed, s.Controls.Total, s.Controls.Percent*100,
		)
	}
	w.Flush() //nolint:errcheck

	for _, s := range summaries {
		if s.Result.Overridden() {
			fmt.Fprintf(&sb, "* %s: %s\n", s.Label, s.Result.Source)
		}
	}

	return sb.String()
}

// formatP renders a p-value with four decimals, collapsing very small
// values to a bounded form.
func formatP(p float64) string {
	if p < 0.0001 {
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}
