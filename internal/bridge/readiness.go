package bridge

// State is the readiness of the scripting environment.
type State int

const (
	NotLoaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// readiness tracks the state and the generation of the most recent
// navigation. Only the newest navigation may complete.
type readiness struct {
	state      State
	generation uint64
}

// begin enters Loading for a new navigation and returns its generation.
func (r *readiness) begin() uint64 {
	r.generation++
	r.state = Loading
	return r.generation
}

// finish moves to Ready if gen is the current navigation and it has not
// already completed.
func (r *readiness) finish(gen uint64) bool {
	if gen != r.generation || r.state != Loading {
		return false
	}
	r.state = Ready
	return true
}

func (r *readiness) ready() bool {
	return r.state == Ready
}
