package relay

import "time"

// Record is one history entry, appended per node attempt-group. Duration is
// the wall-clock time of the whole group, backoff waits included. Retries
// counts the attempts beyond the first.
type Record struct {
	Node     string
	Duration time.Duration
	Retries  int
	Error    string
}

// State is the mutable accumulator threaded through one execution: the data
// map patched by successful nodes plus the ordered node history. A State is
// owned exclusively by its in-flight run and needs no locking.
type State struct {
	data    map[string]any
	history []Record
}

// NewState builds a State seeded with a copy of initial. The executor makes
// its own; this is for exercising node functions directly.
func NewState(initial map[string]any) *State {
	return newState(initial)
}

func newState(initial map[string]any) *State {
	data := make(map[string]any, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &State{data: data}
}

// Get retrieves a value from the run's data.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Data returns the live data map. It belongs to the in-flight run; callers
// must treat it as read-only and must not retain it past the run.
func (s *State) Data() map[string]any {
	return s.data
}

// History returns a copy of the per-node history records.
func (s *State) History() []Record {
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// apply shallow-merges a patch into the data: each patch key replaces the
// prior value wholesale.
func (s *State) apply(patch map[string]any) {
	for k, v := range patch {
		s.data[k] = v
	}
}

func (s *State) record(r Record) {
	s.history = append(s.history, r)
}
