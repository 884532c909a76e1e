package relay

type State int32

const (
	StateIdle State = iota
	StateFetchingAll
	StateNotifying
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingAll:
		return "fetching"
	case StateNotifying:
		return "notifying"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (r *Relay) State() State {
	return State(r.state.Load())
}

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
}
