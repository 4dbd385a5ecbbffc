// Package analysis partitions the long-form exposure table by food,
// fits a conditional logistic regression per food, and assembles the
// odds-ratio summary rows.
package analysis

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/epifield/outbreak-cli/internal/clogit"
	"github.com/epifield/outbreak-cli/internal/model"
	"github.com/epifield/outbreak-cli/internal/study"
)

// Config tunes the analyzer.
type Config struct {
	ConfidenceLevel float64 // default 0.95
	Concurrency     int     // parallel per-food fits, default 4
}

// Analyzer runs the per-food modeling and result assembly stage.
type Analyzer struct {
	def  study.Definition
	conf float64
	conc int
}

// New creates an Analyzer for the given study definition.
func New(def study.Definition, cfg Config) *Analyzer {
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = 0.95
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Analyzer{def: def, conf: cfg.ConfidenceLevel, conc: cfg.Concurrency}
}

// foodGroup is the per-food slice of the long table, regrouped into
// matched pairs plus descriptive counts.
type foodGroup struct {
	pairs    map[int]*clogit.Pair
	cases    model.ArmCounts
	controls model.ArmCounts
}

// Run fits every food group and returns one summary row per food,
// sorted ascending by odds ratio (ties broken by label) so repeated
// runs on identical input produce identical tables. Fits are
// independent and run concurrently; results are indexed by food, never
// by completion order.
func (a *Analyzer) Run(ctx context.Context, rows []model.ExposureRow) ([]model.FoodSummary, error) {
	groups := a.group(rows)

	foods := a.def.FoodColumns()
	results := make([]model.ModelResult, len(foods))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.conc)
	for i, food := range foods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			grp, ok := groups[food]
			if !ok {
				return eris.Errorf("analysis: no exposure rows for food %s", food)
			}
			res, err := a.fitFood(food, grp)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]model.FoodSummary, len(foods))
	for i, food := range foods {
		grp := groups[food]
		summaries[i] = model.FoodSummary{
			Food:     food,
			Label:    a.def.LabelFor(food),
			Result:   results[i],
			Cases:    grp.cases,
			Controls: grp.controls,
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Result.OddsRatio != summaries[j].Result.OddsRatio {
			return summaries[i].Result.OddsRatio < summaries[j].Result.OddsRatio
		}
		return summaries[i].Label < summaries[j].Label
	})

	return summaries, nil
}

// fitFood fits one food group. A non-convergent fit is not fatal: the
// study definition must carry an externally computed correction, which
// is substituted verbatim and logged so the override is auditable.
func (a *Analyzer) fitFood(food string, grp *foodGroup) (model.ModelResult, error) {
	pairs := make([]clogit.Pair, 0, len(grp.pairs))
	for _, stratum := range sortedStrata(grp.pairs) {
		pairs = append(pairs, *grp.pairs[stratum])
	}

	res, err := clogit.Fit(pairs, clogit.Options{ConfidenceLevel: a.conf})
	if err == nil {
		zap.L().Debug("analysis: fitted food",
			zap.String("food", food),
			zap.Float64("odds_ratio", res.OddsRatio),
			zap.Int("discordant_pairs", res.Discordant),
			zap.Int("iterations", res.Iterations),
		)
		return model.ModelResult{
			Kind:      model.ResultFitted,
			OddsRatio: res.OddsRatio,
			CILower:   res.CILower,
			CIUpper:   res.CIUpper,
			PValue:    res.PValue,
		}, nil
	}

	if !errors.Is(err, clogit.ErrNotConverged) {
		return model.ModelResult{}, eris.Wrapf(err, "analysis: fit %s", food)
	}

	corr, ok := a.def.CorrectionFor(food)
	if !ok {
		return model.ModelResult{}, eris.Wrapf(err, "analysis: fit %s failed and no correction is defined", food)
	}

	zap.L().Warn("analysis: substituting externally computed result for non-convergent fit",
		zap.String("food", food),
		zap.String("reason", err.Error()),
		zap.Float64("odds_ratio", corr.OddsRatio),
		zap.Float64("ci_lower", corr.CILower),
		zap.Float64("ci_upper", corr.CIUpper),
		zap.Float64("p_value", corr.PValue),
		zap.String("source", corr.Source),
	)

	return model.ModelResult{
		Kind:      model.ResultOverridden,
		OddsRatio: corr.OddsRatio,
		CILower:   corr.CILower,
		CIUpper:   corr.CIUpper,
		PValue:    corr.PValue,
		Source:    corr.Source,
	}, nil
}

// group partitions the long table by food, regrouping each food's rows
// into matched pairs and accumulating the descriptive counts. Missing
// values stay out of the count denominators but the rows themselves
// are never dropped.
func (a *Analyzer) group(rows []model.ExposureRow) map[string]*foodGroup {
	groups := make(map[string]*foodGroup, len(a.def.Foods))
	for _, row := range rows {
		grp := groups[row.Food]
		if grp == nil {
			grp = &foodGroup{pairs: make(map[int]*clogit.Pair)}
			groups[row.Food] = grp
		}

		p := grp.pairs[row.Stratum]
		if p == nil {
			p = &clogit.Pair{Case: model.ExposureMissing, Control: model.ExposureMissing}
			grp.pairs[row.Stratum] = p
		}

		arm := &grp.controls
		if row.Case {
			arm = &grp.cases
			p.Case = row.Value
		} else {
			p.Control = row.Value
		}
		if row.Value.Known() {
			arm.Total++
			if row.Value == model.ExposureYes {
				arm.Exposed++
			}
		}
	}

	for _, grp := range groups {
		grp.cases.Percent = percent(grp.cases.Exposed, grp.cases.Total)
		grp.controls.Percent = percent(grp.controls.Exposed, grp.controls.Total)
	}
	return groups
}

// percent returns exposed/total rounded to two decimals, 0 when the
// arm has no informative answers.
func percent(exposed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(exposed)/float64(total)*100) / 100
}

func sortedStrata(pairs map[int]*clogit.Pair) []int {
	strata := make([]int, 0, len(pairs))
	for s := range pairs {
		strata = append(strata, s)
	}
	sort.Ints(strata)
	return strata
}
