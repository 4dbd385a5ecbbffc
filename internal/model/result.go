package model

// ResultKind distinguishes a model-derived result from a manually
// substituted one.
type ResultKind string

const (
	// ResultFitted means the estimates come from a converged
	// conditional logistic regression fit.
	ResultFitted ResultKind = "fitted"
	// ResultOverridden means the fit failed to converge and the
	// estimates were substituted from an externally computed source.
	ResultOverridden ResultKind = "overridden"
)

// ModelResult holds the per-food association estimates. Kind tells
// whether they were fitted or substituted; Source names the external
// origin for overridden results and is empty otherwise.
type ModelResult struct {
	Kind      ResultKind `json:"kind"`
	OddsRatio float64    `json:"odds_ratio"`
	CILower   float64    `json:"ci_lower"`
	CIUpper   float64    `json:"ci_upper"`
	PValue    float64    `json:"p_value"`
	Source    string     `json:"source,omitempty"`
}

// Overridden reports whether the result was substituted rather than fitted.
func (r ModelResult) Overridden() bool {
	return r.Kind == ResultOverridden
}

// ArmCounts holds the descriptive exposure counts for one study arm
// (cases or controls) for a single food. Percent is exposed over the
// non-missing total, rounded to two decimals.
type ArmCounts struct {
	Exposed int     `json:"exposed"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// FoodSummary is one row of the final summary table: a food joined
// with its model result and its per-arm descriptive counts.
type FoodSummary struct {
	Food     string      `json:"food"`
	Label    string      `json:"label"`
	Result   ModelResult `json:"result"`
	Cases    ArmCounts   `json:"cases"`
	Controls ArmCounts   `json:"controls"`
}
