package chat

import "testing"

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateIdle:             "idle",
		StateEmbedding:        "embedding",
		StateRetrieving:       "retrieving",
		StateWindowBuilding:   "window_building",
		StateBudgetAllocating: "budget_allocating",
		StateGenerating:       "generating",
		StatePersisting:       "persisting",
		StateDone:             "done",
		StateFailed:           "failed",
		State(42):             "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int(state), got, want)
		}
	}
}
