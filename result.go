package relay

import "time"

// Result is the immutable outcome of one execution, produced once when the
// run ends and returned to the caller. FinalState carries the data and
// history accumulated up to the end of the run, including partial progress
// on failed runs.
type Result struct {
	ExecutionID   string
	Graph         string
	Success       bool
	Duration      time.Duration
	NodesExecuted []string
	Errors        []NodeError
	FinalState    *State
}

// Err returns the first recorded error, or nil for successful runs.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}
