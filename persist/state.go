package persist

// State is the synchronizer's single guard in place of separate
// "saving" and "loading" flags
type State int

const (
	StateIdle State = iota
	StateLoading
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSaving:
		return "saving"
	}
	return "unknown"
}

// Verdict is what a debounce firing is allowed to do
type Verdict int

const (
	// VerdictRun starts a write cycle.
	VerdictRun Verdict = iota
	// VerdictDrop skips the cycle because another one is in flight. It is
	// not queued; the next Save re-arms the timer.
	VerdictDrop
	// VerdictSuppress skips the cycle because a load is in progress.
	VerdictSuppress
)

// BeginSave decides a debounce firing
func BeginSave(s State) (State, Verdict) {
	switch s {
	case StateSaving:
		return s, VerdictDrop
	case StateLoading:
		return s, VerdictSuppress
	}
	return StateSaving, VerdictRun
}

// EndSave finishes a write cycle. A load that started meanwhile keeps its state.
func EndSave(s State) State {
	if s == StateSaving {
		return StateIdle
	}
	return s
}

// BeginLoad enters loading from any state. A cycle already writing keeps
// running; EndSave will then leave the loading state alone.
func BeginLoad(State) State {
	return StateLoading
}

// EndLoad leaves loading: back to saving when a cycle is still running,
// idle otherwise
func EndLoad(cycleRunning bool) State {
	if cycleRunning {
		return StateSaving
	}
	return StateIdle
}
