package chat

// State identifies where in the turn pipeline a request currently is.
// Transitions are strictly sequential; any stage failure moves directly to
// StateFailed and aborts the turn.
type State int

const (
	StateIdle State = iota
	StateEmbedding
	StateRetrieving
	StateWindowBuilding
	StateBudgetAllocating
	StateGenerating
	StatePersisting
	StateDone
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEmbedding:
		return "embedding"
	case StateRetrieving:
		return "retrieving"
	case StateWindowBuilding:
		return "window_building"
	case StateBudgetAllocating:
		return "budget_allocating"
	case StateGenerating:
		return "generating"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
