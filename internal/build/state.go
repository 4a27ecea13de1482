package build

import "fmt"

// Stage of a gated build.
type State string

const (
	StateInit                  State = "INIT"
	StateDependenciesInstalled State = "DEPENDENCIES_INSTALLED"
	StateSourceStaged          State = "SOURCE_STAGED"
	StateVerified              State = "VERIFIED"
	StateAborted               State = "ABORTED"
	StateFinalized             State = "FINALIZED"
	StateRunning               State = "RUNNING"
)

// Legal successors of each state. ABORTED and RUNNING have none.
var transitions = map[State][]State{
	StateInit:                  {StateDependenciesInstalled, StateAborted},
	StateDependenciesInstalled: {StateSourceStaged, StateAborted},
	StateSourceStaged:          {StateVerified, StateAborted},
	StateVerified:              {StateFinalized, StateAborted},
	StateFinalized:             {StateRunning},
}

// Whether the state may be followed by next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Whether the build has ended, successfully or not.
func (s State) Done() bool {
	return s == StateAborted || s == StateFinalized
}

// Checks a transition, returning [ErrIllegalTransition] if it is not allowed.
func Transition(from, to State) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// Tracks the state of one build and reports every change.
type machine struct {
	state   State
	observe func(State)
}

func newMachine(observe func(State)) *machine {
	m := &machine{state: StateInit, observe: observe}
	m.notify()
	return m
}

func (m *machine) advance(to State) error {
	if err := Transition(m.state, to); err != nil {
		return err
	}
	m.state = to
	m.notify()
	return nil
}

// Moves to ABORTED unless the build has already ended.
func (m *machine) abort() {
	if !m.state.Done() {
		m.advance(StateAborted)
	}
}

func (m *machine) notify() {
	if m.observe != nil {
		m.observe(m.state)
	}
}
