package batch

import (
	"time"

	"cordflow/internal/pipeline"
)

// Policy decides the process exit code for a finished batch.
type Policy struct {
	FailWhenNoneSucceeded bool
	StrictPostconditions  bool
}

// Report summarizes a batch.
type Report struct {
	BatchID             string
	Runs                []*pipeline.Run
	Succeeded           int
	Failed              int
	Aborted             int
	PostconditionMisses int
	Cancelled           bool
	Started             time.Time
	Elapsed             time.Duration
	ErrorLog            string
	Tables              []string
}

// Total is the number of subjects in the batch.
func (r Report) Total() int {
	return len(r.Runs)
}

// ExitCode is 0 unless policy asks otherwise.
func (r Report) ExitCode(policy Policy) int {
	if policy.FailWhenNoneSucceeded && r.Total() > 0 && r.Succeeded == 0 {
		return 1
	}
	if policy.StrictPostconditions && r.PostconditionMisses > 0 {
		return 1
	}
	return 0
}

func (r *Report) tally() {
	r.Succeeded, r.Failed, r.Aborted, r.PostconditionMisses = 0, 0, 0, 0
	for _, run := range r.Runs {
		switch run.Status {
		case pipeline.StatusSucceeded:
			r.Succeeded++
		case pipeline.StatusFailed:
			r.Failed++
		case pipeline.StatusAborted:
			r.Aborted++
		}
		r.PostconditionMisses += len(run.Missing)
	}
}
