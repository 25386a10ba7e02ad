package migrate

import "fmt"

// State is the lifecycle position of a run.
type State string

const (
	StateIdle        State = "idle"
	StateCleaning    State = "cleaning"
	StateExtracting  State = "extracting"
	StateDecomposing State = "decomposing"
	StateLoading     State = "loading"
	StateCommitted   State = "committed"
	StateFailed      State = "failed"
)

// An empty extraction goes straight from extracting to committed.
var transitions = map[State][]State{
	StateIdle:        {StateCleaning, StateFailed},
	StateCleaning:    {StateExtracting, StateFailed},
	StateExtracting:  {StateDecomposing, StateCommitted, StateFailed},
	StateDecomposing: {StateLoading, StateFailed},
	StateLoading:     {StateCommitted, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateCommitted || s == StateFailed }

func checkTransition(from, to State) error {
	for _, s := range transitions[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("migrate: illegal transition %s -> %s", from, to)
}
