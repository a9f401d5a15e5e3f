package pipeline

import (
	"time"

	"cordflow/internal/artifact"
)

// Status is the terminal or current state of a subject run.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// StageRecord is the outcome of one completed stage.
type StageRecord struct {
	Name      string
	RequestID string
	Artifacts int
	Manual    int
	Rows      int
	// Registrations lists the edges the stage added, as "source->dest".
	Registrations []string
	Elapsed       time.Duration
}

// Run is the execution record of one subject.
type Run struct {
	Subject string
	Status  Status
	// StageIndex is the index of the stage that failed or was interrupted,
	// or -1.
	StageIndex  int
	FailedStage string
	Kind        string
	Reason      string
	Stages      []StageRecord
	Artifacts   []artifact.Artifact
	Missing     []string
	// Registrations is every edge in the subject's chain at completion.
	Registrations []string
	Started       time.Time
	Finished      time.Time
}

// NewRun returns a run that has not started.
func NewRun(subject string) *Run {
	return &Run{Subject: subject, Status: StatusNotStarted, StageIndex: -1}
}

// CompletedStageCount is the number of stages that finished successfully.
func (r *Run) CompletedStageCount() int {
	return len(r.Stages)
}

// Elapsed is the wall time between start and finish.
func (r *Run) Elapsed() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
