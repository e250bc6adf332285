package model

import "time"

// RunSummary is the run-level account of recoverable conditions. Every count
// here also appears as a per-record flag in the outputs.
type RunSummary struct {
	RunID        string       `json:"run_id" yaml:"run_id"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time    `json:"finished_at" yaml:"finished_at"`
	Years        []int        `json:"years" yaml:"years"`
	FirstYear    int          `json:"first_year" yaml:"first_year"`
	LastYear     int          `json:"last_year" yaml:"last_year"`
	BreaksPolicy BreaksPolicy `json:"breaks_policy" yaml:"breaks_policy"`
	DeltaPolicy  string       `json:"delta_policy" yaml:"delta_policy"`
	Districts    int          `json:"districts" yaml:"districts"`

	Observed         int `json:"observed" yaml:"observed"`
	Imputed          int `json:"imputed" yaml:"imputed"`
	CoverageGaps     int `json:"coverage_gaps" yaml:"coverage_gaps"`
	MissingIndicator int `json:"missing_indicator" yaml:"missing_indicator"`
	UndefinedClasses int `json:"undefined_classes" yaml:"undefined_classes"`
	DegenerateBreaks int `json:"degenerate_breaks" yaml:"degenerate_breaks"`
	ZeroDivisions    int `json:"zero_divisions" yaml:"zero_divisions"`
	UndefinedDeltas  int `json:"undefined_deltas" yaml:"undefined_deltas"`
	FailedYears      int `json:"failed_years" yaml:"failed_years"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
