// Package survey cleans the raw questionnaire table and reshapes it
// into the long-form exposure table used for modeling.
package survey

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/epifield/outbreak-cli/internal/study"
)

// RawRecord is one participant row after cleaning but before the
// survey codes are decoded. Codes holds the raw integer answer per
// food column.
type RawRecord struct {
	SubjectID string
	PairID    string
	Stratum   int
	Case      bool
	Codes     map[string]int
}

// Required identifier columns in the questionnaire export.
const (
	colSubjectID = "subject_id"
	colPairID    = "pair_id"
	colStatus    = "status"
)

var pairSuffix = regexp.MustCompile(`(\d+)$`)

// Clean parses the raw table (header row first) into one RawRecord per
// valid participant. It drops subjects on the study exclusion list and
// the known duplicate-control rows, assigns each participant a stratum
// id from the numeric suffix of the pair id, and fails if the result
// is not exactly the expected set of complete 1:1 matched pairs.
func Clean(rows [][]string, def study.Definition) ([]RawRecord, error) {
	if len(rows) < 2 {
		return nil, eris.New("survey: table has no data rows")
	}

	idx, err := columnIndex(rows[0], def)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]bool)
	for _, id := range def.ExcludeSubjects {
		drop[id] = true
	}
	for _, id := range def.DuplicateControls {
		drop[id] = true
	}

	var records []RawRecord
	for i, row := range rows[1:] {
		subject := cellAt(row, idx.subject)
		if subject == "" {
			continue // trailing blank row in the export
		}
		if drop[subject] {
			zap.L().Info("survey: dropped excluded subject", zap.String("subject_id", subject))
			continue
		}

		rec, err := parseRecord(row, subject, idx, def)
		if err != nil {
			return nil, eris.Wrapf(err, "survey: row %d (subject %s)", i+2, subject)
		}
		records = append(records, rec)
	}

	if err := validateStrata(records, def.ExpectedPairs); err != nil {
		return nil, err
	}

	// Deterministic order: by stratum, case before control.
	sort.Slice(records, func(i, j int) bool {
		if records[i].Stratum != records[j].Stratum {
			return records[i].Stratum < records[j].Stratum
		}
		return records[i].Case && !records[j].Case
	})

	zap.L().Info("survey: cleaned table",
		zap.Int("participants", len(records)),
		zap.Int("strata", len(records)/2),
	)

	return records, nil
}

// columns holds the resolved positions of the identifier columns and
// each food column.
type columns struct {
	subject int
	pair    int
	status  int
	foods   map[string]int
}

// columnIndex resolves the header row against the expected schema.
// Any missing column is a hard failure: downstream matched-pair
// modeling cannot proceed on a partial schema.
func columnIndex(header []string, def study.Definition) (columns, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[NormalizeHeader(name)] = i
	}

	idx := columns{subject: -1, pair: -1, status: -1, foods: make(map[string]int, len(def.Foods))}
	var missing []string

	var ok bool
	if idx.subject, ok = pos[colSubjectID]; !ok {
		missing = append(missing, colSubjectID)
	}
	if idx.pair, ok = pos[colPairID]; !ok {
		missing = append(missing, colPairID)
	}
	if idx.status, ok = pos[colStatus]; !ok {
		missing = append(missing, colStatus)
	}
	for _, col := range def.FoodColumns() {
		p, ok := pos[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		idx.foods[col] = p
	}

	if len(missing) > 0 {
		return columns{}, eris.Errorf("survey: schema mismatch, missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(row []string, subject string, idx columns, def study.Definition) (RawRecord, error) {
	pairID := cellAt(row, idx.pair)
	m := pairSuffix.FindStringSubmatch(pairID)
	if m == nil {
		return RawRecord{}, eris.Errorf("pair id %q has no numeric suffix", pairID)
	}
	stratum, _ := strconv.Atoi(m[1])

	var isCase bool
	switch cellAt(row, idx.status) {
	case "1":
		isCase = true
	case "0":
		isCase = false
	default:
		return RawRecord{}, eris.Errorf("invalid case/control status %q", cellAt(row, idx.status))
	}

	codes := make(map[string]int, len(idx.foods))
	for col, p := range idx.foods {
		cell := cellAt(row, p)
		if cell == "" {
			codes[col] = def.Codes.Missing
			continue
		}
		code, err := strconv.Atoi(cell)
		if err != nil {
			return RawRecord{}, eris.Wrapf(err, "non-numeric answer %q for %s", cell, col)
		}
		codes[col] = code
	}

	return RawRecord{
		SubjectID: subject,
		PairID:    pairID,
		Stratum:   stratum,
		Case:      isCase,
		Codes:     codes,
	}, nil
}

// validateStrata enforces the 1:1 matching invariant: every stratum
// has exactly one case and one control, and the stratum count equals
// the study's expected pair count.
func validateStrata(records []RawRecord, expectedPairs int) error {
	type arms struct{ cases, controls int }
	strata := make(map[int]*arms)
	for _, r := range records {
		a := strata[r.Stratum]
		if a == nil {
			a = &arms{}
			strata[r.Stratum] = a
		}
		if r.Case {
			a.cases++
		} else {
			a.controls++
		}
	}

	for stratum, a := range strata {
		if a.cases != 1 || a.controls != 1 {
			return eris.Errorf("survey: stratum %d has %d cases and %d controls, want exactly 1 of each", stratum, a.cases, a.controls)
		}
	}
	if len(strata) != expectedPairs {
		return eris.Errorf("survey: %d matched pairs after cleaning, want %d", len(strata), expectedPairs)
	}

	return nil
}

// NormalizeHeader lowercases a column name and collapses spaces and
// dashes to underscores so exports from different tools line up.
func NormalizeHeader(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
