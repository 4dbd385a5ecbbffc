// Package clogit fits a conditional logistic regression of illness
// status on a single binary exposure, stratified by matched
// case-control pair. Conditioning on the pair removes the matching
// from the likelihood, so the estimated odds ratio reflects
// within-pair discordance only.
package clogit

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/epifield/outbreak-cli/internal/model"
)

// ErrNotConverged is returned when the Newton iteration fails to reach
// a stable coefficient, typically because the exposure completely
// separates cases from controls. Callers must not use any estimate
// from such a fit.
var ErrNotConverged = errors.New("clogit: model did not converge")

// Pair holds one matched pair's exposure values for a single food.
type Pair struct {
	Case    model.Exposure
	Control model.Exposure
}

// Options tunes the Newton-Raphson iteration.
type Options struct {
	MaxIter         int     // default 25
	Tol             float64 // score convergence tolerance, default 1e-10
	CoefBound       float64 // |beta| beyond this is treated as divergence, default 15
	ConfidenceLevel float64 // default 0.95
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 25
	}
	if o.Tol <= 0 {
		o.Tol = 1e-10
	}
	if o.CoefBound <= 0 {
		o.CoefBound = 15
	}
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		o.ConfidenceLevel = 0.95
	}
	return o
}

// Result holds a converged fit.
type Result struct {
	Beta       float64 // log odds ratio
	SE         float64 // standard error of Beta
	OddsRatio  float64
	CILower    float64
	CIUpper    float64
	PValue     float64 // two-sided Wald test
	Strata     int     // pairs with both values known
	Discordant int     // pairs contributing information
	Iterations int
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// Fit estimates the exposure log odds ratio by Newton-Raphson on the
// conditional log-likelihood. Pairs with a missing value in either
// member carry no information and are dropped; concordant pairs
// contribute a constant and cancel out of the score.
func Fit(pairs []Pair, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	var complete []Pair
	discordant := 0
	for _, p := range pairs {
		if !p.Case.Known() || !p.Control.Known() {
			continue
		}
		complete = append(complete, p)
		if p.Case != p.Control {
			discordant++
		}
	}
	if len(complete) == 0 {
		return nil, eris.New("clogit: no pairs with complete exposure data")
	}
	if discordant == 0 {
		return nil, eris.Wrap(ErrNotConverged, "clogit: no discordant pairs, exposure carries no within-pair information")
	}

	beta := 0.0
	var iter int
	for iter = 1; iter <= opts.MaxIter; iter++ {
		score, info := scoreInfo(complete, beta)
		if info <= 0 {
			return nil, eris.Wrap(ErrNotConverged, "clogit: information matrix not positive")
		}

		step := score / info
		beta += step

		if math.Abs(beta) > opts.CoefBound {
			// The likelihood has no interior maximum: complete or
			// quasi-complete separation of cases and controls.
			return nil, eris.Wrapf(ErrNotConverged, "clogit: coefficient diverged past %.0f after %d iterations", opts.CoefBound, iter)
		}
		if math.Abs(step) < opts.Tol {
			break
		}
	}
	if iter > opts.MaxIter {
		return nil, eris.Wrapf(ErrNotConverged, "clogit: no convergence in %d iterations", opts.MaxIter)
	}

	_, info := scoreInfo(complete, beta)
	se := 1 / math.Sqrt(info)

	z := stdNormal.Quantile(1 - (1-opts.ConfidenceLevel)/2)
	wald := beta / se

	return &Result{
		Beta:       beta,
		SE:         se,
		OddsRatio:  math.Exp(beta),
		CILower:    math.Exp(beta - z*se),
		CIUpper:    math.Exp(beta + z*se),
		PValue:     2 * stdNormal.CDF(-math.Abs(wald)),
		Strata:     len(complete),
		Discordant: discordant,
		Iterations: iter,
	}, nil
}

// scoreInfo evaluates the score and observed information of the
// conditional log-likelihood at beta. Per stratum the case's exposure
// is compared against the expectation over both pair members, so
// concordant pairs contribute zero to both terms.
func scoreInfo(pairs []Pair, beta float64) (score, info float64) {
	for _, p := range pairs {
		xCase := exposureValue(p.Case)
		xCtrl := exposureValue(p.Control)

		wCase := math.Exp(beta * xCase)
		wCtrl := math.Exp(beta * xCtrl)
		denom := wCase + wCtrl

		mean := (xCase*wCase + xCtrl*wCtrl) / denom
		meanSq := (xCase*xCase*wCase + xCtrl*xCtrl*wCtrl) / denom

		score += xCase - mean
		info += meanSq - mean*mean
	}
	return score, info
}

func exposureValue(e model.Exposure) float64 {
	if e == model.ExposureYes {
		return 1
	}
	return 0
}
