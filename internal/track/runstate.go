package track

import "sync"

// RunState is the per-invocation memory of which comment identifiers
// already received a series entry during this run. A comment fetched
// under several sort orders, or again in the recheck phase, bumps its
// series once. The state lives and dies with one run; two runs must
// never share it.
type RunState struct {
	mu     sync.Mutex
	bumped map[string]struct{}
}

// NewRunState creates an empty run state.
func NewRunState() *RunState {
	return &RunState{bumped: make(map[string]struct{})}
}

// MarkBumped records id and reports whether this was its first
// occurrence in the run.
func (r *RunState) MarkBumped(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.bumped[id]; seen {
		return false
	}
	r.bumped[id] = struct{}{}
	return true
}
