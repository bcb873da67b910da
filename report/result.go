package report

import (
	"errors"
	"time"
)

// StepStatus is the outcome of a scenario step
type StepStatus string

const (
	Passed  StepStatus = "passed"
	Failed  StepStatus = "failed"
	Skipped StepStatus = "skipped" // a dependency did not pass
)

// StepResult is the outcome of one scenario step
type StepResult struct {
	Name      string        `json:"name"`
	Kind      string        `json:"kind"`
	Status    StepStatus    `json:"status"`
	Detail    string        `json:"detail,omitempty"` // what the step observed
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Took      time.Duration `json:"took"`

	err error
}

// Fail() marks the step failed with err
func (s *StepResult) Fail(err error) {
	s.Status, s.Error, s.err = Failed, err.Error(), err
}

// Skip() marks the step skipped because of err
func (s *StepResult) Skip(err error) {
	s.Status, s.Error, s.err = Skipped, err.Error(), err
}

// Err() returns the error that failed or skipped the step
func (s *StepResult) Err() error { return s.err }

// Result is the outcome of a scenario run
type Result struct {
	RunID       string             `json:"runID"`
	Scenario    string             `json:"scenario"`
	StartedAt   time.Time          `json:"startedAt"`
	Took        time.Duration      `json:"took"`
	Steps       []StepResult       `json:"steps"` // in declaration order
	Consistency *ConsistencyReport `json:"consistency,omitempty"`
	Error       string             `json:"error,omitempty"` // set when the scenario could not run at all

	err error
}

// Abort() marks the whole run failed before any step ran
func (r *Result) Abort(err error) {
	r.Error, r.err = err.Error(), err
}

// Passed() reports whether every step passed and the network was consistent
func (r *Result) Passed() bool {
	if r.err != nil {
		return false
	}
	for _, s := range r.Steps {
		if s.Status != Passed {
			return false
		}
	}
	return r.Consistency == nil || r.Consistency.Consistent()
}

// Counts() returns the number of passed, failed and skipped steps
func (r *Result) Counts() (passed, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Status {
		case Passed:
			passed++
		case Failed:
			failed++
		case Skipped:
			skipped++
		}
	}
	return
}

// Err() aggregates every failure of the run, nil when it passed
func (r *Result) Err() error {
	errs := []error{r.err}
	for _, s := range r.Steps {
		if s.Status == Failed {
			errs = append(errs, s.err)
		}
	}
	if r.Consistency != nil {
		if err := r.Consistency.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
