package models

import "time"

// Outcome classifies the result of one item's download
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ItemFailure records a failed or skipped item with its reason
type ItemFailure struct {
	Path   string
	Kind   string
	Code   string
	Reason string
}

// SkippedProject records a project subtree the catalog could not enumerate
type SkippedProject struct {
	Path   string
	Reason string
}

// GitStatus summarizes the staging/commit/push phase of a run
type GitStatus struct {
	Committed  bool
	Pushed     bool
	CommitHash string
	Added      int
	Modified   int
	Deleted    int
	// Error holds the git-phase failure, if any. The mirror directory is
	// already in its new state when this is set; re-running the commit
	// step alone will catch the repository up without re-downloading.
	Error string
}

// RunReport aggregates the outcome of one full sync run
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time

	TotalRemote    int
	UpToDate       int
	Downloaded     int
	Failed         int
	Skipped        int
	Orphaned       int
	OrphansDeleted int

	Failures        []ItemFailure
	SkippedProjects []SkippedProject

	Git GitStatus
}

// Exit codes surfaced to the operator. FatalExitCode distinguishes
// "crashed" from "completed with some items failed".
const (
	SuccessExitCode = 0
	FatalExitCode   = 1
	PartialExitCode = 2
)

// ExitCode derives the process exit status from the report content
func (r *RunReport) ExitCode() int {
	if r.Git.Error != "" {
		return FatalExitCode
	}
	if r.Failed > 0 || len(r.SkippedProjects) > 0 {
		return PartialExitCode
	}
	return SuccessExitCode
}

// Duration returns the wall-clock duration of the run
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
