package supervisor

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-launch-go/pkg/errors"
)

// ProcessState represents where a spawned app is in its lifecycle
type ProcessState string

const (
	// ProcessStateStarting means the first start is in progress
	ProcessStateStarting ProcessState = "starting"

	// ProcessStateRunning means the process is running
	ProcessStateRunning ProcessState = "running"

	// ProcessStateRestarting means a watch-triggered restart is in progress
	ProcessStateRestarting ProcessState = "restarting"

	// ProcessStateStopping means Stop was called and the process is terminating
	ProcessStateStopping ProcessState = "stopping"

	// ProcessStateStopped means the process was stopped on request
	ProcessStateStopped ProcessState = "stopped"

	// ProcessStateExited means the process exited on its own with status 0
	ProcessStateExited ProcessState = "exited"

	// ProcessStateFailed means the process could not start or exited with a non-zero status
	ProcessStateFailed ProcessState = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s ProcessState) IsTerminal() bool {
	return s == ProcessStateStopped || s == ProcessStateExited || s == ProcessStateFailed
}

// StateTransition records one state change
type StateTransition struct {
	From      ProcessState `json:"from"`
	To        ProcessState `json:"to"`
	Operation string       `json:"operation"`
	Timestamp time.Time    `json:"timestamp"`
}

const maxTransitionHistory = 32

var validTransitions = map[ProcessState][]ProcessState{
	ProcessStateStarting: {
		ProcessStateRunning, // start success
		ProcessStateFailed,  // start failure
	},
	ProcessStateRunning: {
		ProcessStateRestarting, // file change
		ProcessStateStopping,   // Stop
		ProcessStateExited,     // clean exit
		ProcessStateFailed,     // crash
	},
	ProcessStateRestarting: {
		ProcessStateRunning, // restart success
		ProcessStateFailed,  // restart failure
	},
	ProcessStateStopping: {
		ProcessStateStopped,
	},
}

// stateMachine is not safe for concurrent use; the owning handle serializes access
type stateMachine struct {
	current     ProcessState
	transitions []StateTransition
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: ProcessStateStarting}
}

func (sm *stateMachine) Current() ProcessState {
	return sm.current
}

func (sm *stateMachine) Transition(to ProcessState, operation string) error {
	if !sm.canTransition(to) {
		return errors.NewConflictError(
			fmt.Sprintf("invalid state transition from %s to %s", sm.current, to),
			nil,
		).WithContext("operation", operation)
	}

	sm.transitions = append(sm.transitions, StateTransition{
		From:      sm.current,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
	})
	if len(sm.transitions) > maxTransitionHistory {
		sm.transitions = sm.transitions[len(sm.transitions)-maxTransitionHistory:]
	}
	sm.current = to
	return nil
}

func (sm *stateMachine) History() []StateTransition {
	return append([]StateTransition(nil), sm.transitions...)
}

func (sm *stateMachine) canTransition(to ProcessState) bool {
	for _, allowed := range validTransitions[sm.current] {
		if allowed == to {
			return true
		}
	}
	return false
}
