package coordinator

import "github.com/arxiv/fulltext/internal/resultstore"

// StateKind is the sum type spec §9's design notes call for in place of
// the original system's queue-result polymorphism (a dict on success, a
// string on failure, nothing on pending).
type StateKind int

const (
	StateNoSuchTask StateKind = iota
	StateInProgress
	StateFailed
	StateSucceeded
)

// TaskState is the resolved, typed view of a backend Record.
type TaskState struct {
	Kind      StateKind
	Exception string  // set iff Kind == StateFailed
	Owner     *string // set iff Kind == StateSucceeded and an owner was recorded
}

// mapBackendState implements the table in spec §4.5: PENDING -> no such
// task, SENT/STARTED/RETRY -> in progress, FAILURE -> failed, SUCCESS ->
// succeeded with owner lifted from the result.
func mapBackendState(record resultstore.Record) TaskState {
	switch record.State {
	case resultstore.StatePending:
		return TaskState{Kind: StateNoSuchTask}
	case resultstore.StateSent, resultstore.StateStarted, resultstore.StateRetry:
		return TaskState{Kind: StateInProgress}
	case resultstore.StateFailure:
		return TaskState{Kind: StateFailed, Exception: record.Result}
	case resultstore.StateSuccess:
		var owner *string
		if record.Result != "" {
			owner = &record.Result
		}
		return TaskState{Kind: StateSucceeded, Owner: owner}
	default:
		return TaskState{Kind: StateNoSuchTask}
	}
}
