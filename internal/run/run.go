// Package run defines the PipelineRun aggregate: the only entity with a
// defined identity across the whole lifecycle, created at request acceptance
// and terminated at final success or final rejection.
package run

import (
	"time"

	"github.com/mlpilot/mlpilot/internal/request"
	"github.com/mlpilot/mlpilot/internal/verify"
)

// Phase is one state of the orchestrator's top-level state machine.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseValidating   Phase = "validating"
	PhasePlanning     Phase = "planning"
	PhaseExecuting    Phase = "executing"
	PhaseVerifying    Phase = "verifying"
	PhaseRetrying     Phase = "retrying"
	PhaseCompleted    Phase = "completed"
	PhaseRejected     Phase = "rejected"
)

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseRejected
}

// Transition outcomes recorded in the event log.
const (
	OutcomeEnter = "enter"
	OutcomePass  = "pass"
	OutcomeFail  = "fail"
	OutcomeRetry = "retry"
)

// TransitionEvent is one append-only entry in a run's phase-transition log.
// The log is the sole source of truth for resuming or auditing a run.
type TransitionEvent struct {
	RunID       string
	Seq         int
	Phase       Phase
	Outcome     string
	Diagnostics string
	Timestamp   time.Time
}

// Rejection is the terminal record of a rejected run. It always names the
// last successfully completed phase and carries a concrete diagnostic trail,
// never a bare internal error.
type Rejection struct {
	Reason      string
	LastPhase   Phase
	Diagnostics []string
}

// PipelineRun ties one TaskRequest to its plans, reports, and retry
// counters. Only the orchestrator mutates it, from a single goroutine.
type PipelineRun struct {
	ID        string
	Request   request.TaskRequest
	Phase     Phase
	CreatedAt time.Time

	ClarificationsUsed  int
	PlanAttempts        int
	AttemptedStrategies []string

	Reports     []verify.Report
	Diagnostics []string

	// Exactly one of these is set once the run is terminal.
	Summary   *verify.SolutionSummary
	Rejection *Rejection
}

// New creates a run in the initializing phase.
func New(id string) *PipelineRun {
	return &PipelineRun{
		ID:        id,
		Phase:     PhaseInitializing,
		CreatedAt: time.Now(),
	}
}

// AddDiagnostics appends to the run's diagnostic trail.
func (r *PipelineRun) AddDiagnostics(diags ...string) {
	r.Diagnostics = append(r.Diagnostics, diags...)
}

// LastReport returns the most recent verification report, or nil.
func (r *PipelineRun) LastReport() *verify.Report {
	if len(r.Reports) == 0 {
		return nil
	}
	return &r.Reports[len(r.Reports)-1]
}

// StrategyAttempted reports whether a plan with the given strategy was
// already dispatched for this run.
func (r *PipelineRun) StrategyAttempted(strategy string) bool {
	for _, s := range r.AttemptedStrategies {
		if s == strategy {
			return true
		}
	}
	return false
}
