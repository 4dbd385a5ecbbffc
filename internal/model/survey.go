// Package model defines the domain types shared across the analysis pipeline.
package model

// Exposure is the domain meaning of a single food-exposure answer after
// the raw survey codes have been decoded.
type Exposure int8

const (
	// ExposureNo means the participant reported not eating the food.
	ExposureNo Exposure = iota
	// ExposureYes means the participant reported eating the food.
	ExposureYes
	// ExposureMissing covers both an absent answer and the "not sure"
	// survey response, which the study protocol collapses into missing.
	ExposureMissing
)

// String returns a short label for table and log output.
func (e Exposure) String() string {
	switch e {
	case ExposureNo:
		return "no"
	case ExposureYes:
		return "yes"
	default:
		return "missing"
	}
}

// Known reports whether the answer carries information (yes or no).
func (e Exposure) Known() bool {
	return e == ExposureYes || e == ExposureNo
}

// SurveyRecord is one cleaned questionnaire row: a single participant
// with their matched-pair stratum and decoded food exposures.
type SurveyRecord struct {
	SubjectID string              `json:"subject_id"`
	PairID    string              `json:"pair_id"`
	Stratum   int                 `json:"stratum"`
	Case      bool                `json:"case"`
	Exposures map[string]Exposure `json:"exposures"` // keyed by food column name
}

// ExposureRow is one row of the long-form exposure table:
// one participant's answer for one food.
type ExposureRow struct {
	Stratum int
	Case    bool
	Food    string
	Value   Exposure
}
