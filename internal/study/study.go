// Package study holds the study definition: the food questionnaire
// layout, the subject exclusion list, the raw survey code mapping, and
// the externally computed correction table for non-convergent fits.
package study

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/epifield/outbreak-cli/internal/model"
)

// Food pairs a questionnaire column with its display label.
type Food struct {
	Column string `yaml:"column"`
	Label  string `yaml:"label"`
}

// CodeMapping names the raw questionnaire codes. The questionnaire
// records 8 for "not sure" and 9 for an absent answer; the study
// protocol collapses "not sure" into missing rather than treating it
// as its own category, and Decode preserves that.
type CodeMapping struct {
	Eaten    int `yaml:"eaten"`
	NotEaten int `yaml:"not_eaten"`
	Unsure   int `yaml:"unsure"`
	Missing  int `yaml:"missing"`
}

// Decode maps a raw survey code to its domain exposure value.
func (m CodeMapping) Decode(code int) (model.Exposure, error) {
	switch code {
	case m.Eaten:
		return model.ExposureYes, nil
	case m.NotEaten:
		return model.ExposureNo, nil
	case m.Unsure, m.Missing:
		return model.ExposureMissing, nil
	default:
		return model.ExposureMissing, eris.Errorf("study: unknown survey code %d", code)
	}
}

// Correction is an externally computed result substituted for a food
// whose regression does not converge. Source documents where the
// numbers came from so the substitution stays auditable.
type Correction struct {
	Food      string  `yaml:"food"`
	OddsRatio float64 `yaml:"odds_ratio"`
	CILower   float64 `yaml:"ci_lower"`
	CIUpper   float64 `yaml:"ci_upper"`
	PValue    float64 `yaml:"p_value"`
	Source    string  `yaml:"source"`
}

// Definition describes one matched case-control study.
type Definition struct {
	Name              string       `yaml:"name"`
	ExpectedPairs     int          `yaml:"expected_pairs"`
	Foods             []Food       `yaml:"foods"`
	ExcludeSubjects   []string     `yaml:"exclude_subjects"`
	DuplicateControls []string     `yaml:"duplicate_controls"`
	Codes             CodeMapping  `yaml:"codes"`
	Corrections       []Correction `yaml:"corrections"`
}

// Default returns the built-in definition for the banquet outbreak
// study: 36 matched pairs and 20 food exposures. The excluded subjects
// are cases whose matched control never returned a questionnaire, plus
// one control that was entered twice.
func Default() Definition {
	return Definition{
		Name:          "banquet-outbreak",
		ExpectedPairs: 36,
		Foods: []Food{
			{Column: "roast_beef", Label: "Roast beef"},
			{Column: "chicken", Label: "Chicken"},
			{Column: "ham", Label: "Ham"},
			{Column: "green_salad", Label: "Green salad"},
			{Column: "coleslaw", Label: "Coleslaw"},
			{Column: "potato_salad", Label: "Potato salad"},
			{Column: "pasta_salad", Label: "Pasta salad"},
			{Column: "rice", Label: "Rice"},
			{Column: "eggs", Label: "Eggs"},
			{Column: "mayonnaise", Label: "Mayonnaise"},
			{Column: "cheese", Label: "Cheese"},
			{Column: "milk", Label: "Milk"},
			{Column: "ice_cream", Label: "Ice cream"},
			{Column: "cake", Label: "Cake"},
			{Column: "custard", Label: "Custard"},
			{Column: "fruit_salad", Label: "Fruit salad"},
			{Column: "shrimp", Label: "Shrimp"},
			{Column: "oysters", Label: "Oysters"},
			{Column: "lettuce", Label: "Lettuce"},
			{Column: "tomato", Label: "Tomato"},
		},
		ExcludeSubjects:   []string{"S-214", "S-229", "S-261"},
		DuplicateControls: []string{"S-318"},
		Codes:             CodeMapping{Eaten: 1, NotEaten: 0, Unsure: 8, Missing: 9},
		Corrections: []Correction{
			{
				Food:      "custard",
				OddsRatio: 18.6,
				CILower:   3.94,
				CIUpper:   176.2,
				PValue:    0.0001,
				Source:    "exact conditional logistic regression, computed externally (complete separation)",
			},
		},
	}
}

// Load reads a study definition from a YAML file.
func Load(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, eris.Wrap(err, "study: read definition file")
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, eris.Wrap(err, "study: unmarshal definition")
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks the definition for internal consistency.
func (d Definition) Validate() error {
	if d.ExpectedPairs <= 0 {
		return eris.New("study: expected_pairs must be positive")
	}
	if len(d.Foods) == 0 {
		return eris.New("study: no foods defined")
	}

	seen := make(map[string]bool, len(d.Foods))
	for _, f := range d.Foods {
		if f.Column == "" {
			return eris.New("study: food with empty column name")
		}
		if seen[f.Column] {
			return eris.Errorf("study: duplicate food column %q", f.Column)
		}
		seen[f.Column] = true
	}

	for _, c := range d.Corrections {
		if !seen[c.Food] {
			return eris.Errorf("study: correction for unknown food %q", c.Food)
		}
		if c.Source == "" {
			return eris.Errorf("study: correction for %q has no source", c.Food)
		}
	}

	return nil
}

// CorrectionFor returns the externally computed result for a food, if
// the definition carries one.
func (d Definition) CorrectionFor(food string) (Correction, bool) {
	for _, c := range d.Corrections {
		if c.Food == food {
			return c, true
		}
	}
	return Correction{}, false
}

// FoodColumns returns the questionnaire column names in definition order.
func (d Definition) FoodColumns() []string {
	cols := make([]string, len(d.Foods))
	for i, f := range d.Foods {
		cols[i] = f.Column
	}
	return cols
}

// LabelFor returns the display label for a food column, falling back
// to the column name.
func (d Definition) LabelFor(column string) string {
	for _, f := range d.Foods {
		if f.Column == column {
			return f.Label
		}
	}
	return column
}
