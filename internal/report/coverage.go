package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
)

type coverageSummary struct {
	CoveredLines   int      `json:"covered_lines"`
	NumStatements  int      `json:"num_statements"`
	MissingLines   int      `json:"missing_lines"`
	PercentCovered *float64 `json:"percent_covered"`
}

// Parses a coverage.py JSON report.
//
// The aggregate comes from "totals"; per-file units are sorted by path.
func ParseCoverage(r io.Reader) (*Coverage, error) {
	var doc struct {
		Files map[string]struct {
			Summary coverageSummary `json:"summary"`
		} `json:"files"`
		Totals *coverageSummary `json:"totals"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCoverage, err)
	}
	if doc.Totals == nil || doc.Totals.PercentCovered == nil {
		return nil, fmt.Errorf("%w: missing totals", ErrMalformedCoverage)
	}

	c := &Coverage{
		Percent:    round(*doc.Totals.PercentCovered),
		Statements: doc.Totals.NumStatements,
		Covered:    doc.Totals.CoveredLines,
		Missing:    doc.Totals.MissingLines,
	}

	for path, f := range doc.Files {
		u := Unit{
			Path:       path,
			Statements: f.Summary.NumStatements,
			Missing:    f.Summary.MissingLines,
		}
		if f.Summary.PercentCovered != nil {
			u.Percent = round(*f.Summary.PercentCovered)
		}
		c.Units = append(c.Units, u)
	}
	slices.SortFunc(c.Units, func(a, b Unit) int {
		return strings.Compare(a.Path, b.Path)
	})

	return c, nil
}

// Rounds to two decimal places.
func round(v float64) float64 {
	return math.Round(v*100) / 100
}
