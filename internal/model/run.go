package model

import "time"

// Branch names which stage a run worked on.
type Branch string

const (
	BranchNone   Branch = "none"
	BranchEmail  Branch = "email"
	BranchSMS    Branch = "sms"
	BranchLocked Branch = "locked"
)

type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeWaiting Outcome = "waiting"
	OutcomeDryRun  Outcome = "dry_run"
)

// RowResult records what a run did with one contact row.
type RowResult struct {
	Row        int     `json:"row"`
	ContactID  string  `json:"contactId,omitempty"`
	Channel    Channel `json:"channel"`
	Outcome    Outcome `json:"outcome"`
	Detail     string  `json:"detail,omitempty"`
	WriteError string  `json:"writeError,omitempty"`
}

// RunSummary is the result of one processor invocation.
type RunSummary struct {
	RunID      string    `json:"runId"`
	Branch     Branch    `json:"branch"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Processed   int `json:"processed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Waiting     int `json:"waiting"`
	WriteErrors int `json:"writeErrors"`

	Notification string      `json:"notification,omitempty"`
	Rows         []RowResult `json:"rows,omitempty"`
}

// Record appends r and updates the counters.
func (s *RunSummary) Record(r RowResult) {
	switch r.Outcome {
	case OutcomeSent, OutcomeDryRun:
		s.Processed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeWaiting:
		s.Waiting++
	}
	if r.WriteError != "" {
		s.WriteErrors++
	}
	s.Rows = append(s.Rows, r)
}
