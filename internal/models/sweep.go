package models

import (
	"time"
)

// OutcomeStatus is the per-indent result of a shortfall sweep.
type OutcomeStatus string

const (
	OutcomeCreated          OutcomeStatus = "Created"
	OutcomeNoShortfall      OutcomeStatus = "NoShortfall"
	OutcomeAlreadyProcessed OutcomeStatus = "AlreadyProcessed"
	OutcomeError            OutcomeStatus = "Error"
)

func (s OutcomeStatus) String() string {
	return string(s)
}

// SweepOutcome reports what the sweep did with one source indent.
type SweepOutcome struct {
	IndentID         string
	Route            string
	Date             string
	Status           OutcomeStatus
	Message          string
	AdjustedIndentID string
	ShortfallLines   int
	HadShortfall     bool
	Warnings         []string
}

// SweepSummary aggregates the outcomes of one sweep run.
type SweepSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Processed        int
	Created          int
	WithShortfall    int
	WithoutShortfall int
	AlreadyAdjusted  int
	Errors           int

	Details []SweepOutcome
}

// Record appends an outcome and updates the counts.
func (s *SweepSummary) Record(o SweepOutcome) {
	s.Details = append(s.Details, o)
	s.Processed++
	if o.HadShortfall {
		s.WithShortfall++
	}
	switch o.Status {
	case OutcomeCreated:
		s.Created++
	case OutcomeNoShortfall:
		s.WithoutShortfall++
	case OutcomeAlreadyProcessed:
		s.AlreadyAdjusted++
	case OutcomeError:
		s.Errors++
	}
}

// Duration is the wall time of the run.
func (s *SweepSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
