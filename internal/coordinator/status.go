package coordinator

import "time"

// State is the refresh state machine position.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Result is the outcome of the most recent completed cycle.
type Result int

const (
	ResultNone Result = iota // no cycle has completed yet
	ResultSuccess
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "none"
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time copy of the coordinator's refresh status.
type Status struct {
	State               State
	LastResult          Result
	LastErr             error     // nil unless LastResult == ResultFailed
	LastAttempt         time.Time // start of the most recent completed cycle
	LastSuccess         time.Time // FetchedAt of the current snapshot
	ConsecutiveFailures int
}

// Failed reports whether the most recent cycle failed, i.e. the current
// snapshot (if any) is stale.
func (s Status) Failed() bool {
	return s.LastResult == ResultFailed
}
