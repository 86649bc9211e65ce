package metrics

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an orchestration run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// String returns the string representation of the run status
func (s RunStatus) String() string {
	return string(s)
}

// RunLedgerEntry audits one orchestrator execution. An entry is created with
// status running when the run starts and transitions exactly once to
// completed or failed. Partial success (some tenants failed) is a normal
// completed outcome, not a failure.
type RunLedgerEntry struct {
	ID      uuid.UUID
	RunDate time.Time
	Periods []Period
	Status  RunStatus

	TenantsProcessed  int
	TotalTenants      int
	MetricsCalculated int
	FailedTasks       int
	CacheHits         int

	ExecutionTime    time.Duration
	DataQualityScore float64
	ErrorMessage     string

	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewRunLedgerEntry creates a running ledger entry for a fresh orchestration
// pass over the given periods.
func NewRunLedgerEntry(periods []Period) *RunLedgerEntry {
	now := time.Now().UTC()
	return &RunLedgerEntry{
		ID:        uuid.New(),
		RunDate:   now,
		Periods:   append([]Period(nil), periods...),
		Status:    RunStatusRunning,
		StartedAt: now,
	}
}

// Complete marks the run as finished. Task failures recorded in FailedTasks
// do not prevent completion; they are a reportable partial-success outcome.
func (e *RunLedgerEntry) Complete() {
	now := time.Now().UTC()
	e.Status = RunStatusCompleted
	e.CompletedAt = &now
	e.ExecutionTime = now.Sub(e.StartedAt)
}

// Fail marks the run as failed with an operator-visible message. Counters
// already accumulated are kept so a cancelled run reports partial progress.
func (e *RunLedgerEntry) Fail(message string) {
	now := time.Now().UTC()
	e.Status = RunStatusFailed
	e.ErrorMessage = message
	e.CompletedAt = &now
	e.ExecutionTime = now.Sub(e.StartedAt)
}

// IsFinal reports whether the entry has reached a terminal status.
func (e *RunLedgerEntry) IsFinal() bool {
	return e.Status == RunStatusCompleted || e.Status == RunStatusFailed
}
