package model

// InstanceState represents the lifecycle state of an Instance.
type InstanceState string

const (
	InstancePending   InstanceState = "PENDING"
	InstanceWaiting   InstanceState = "WAITING"
	InstanceReady     InstanceState = "READY"
	InstanceRunning   InstanceState = "RUNNING"
	InstanceSucceeded InstanceState = "SUCCEEDED"
	InstanceFailed    InstanceState = "FAILED"
	InstanceKilled    InstanceState = "KILLED"
	InstanceSkipped   InstanceState = "SKIPPED"
)

// String returns the string representation of the instance state.
func (s InstanceState) String() string {
	return string(s)
}

// IsTerminal returns true if the instance is in a final state.
// Terminal instances are immutable; a retry creates a new Instance with
// Attempt+1 rather than reviving a terminal one.
func (s InstanceState) IsTerminal() bool {
	switch s {
	case InstanceSucceeded, InstanceFailed, InstanceKilled, InstanceSkipped:
		return true
	}
	return false
}

// ValidInstanceTransitions defines the allowed state transitions for Instances.
//
// READY -> FAILED covers the pending-timeout path (an admitted instance that
// never got queue capacity). WAITING -> SKIPPED covers dependency blocks.
var ValidInstanceTransitions = map[InstanceState][]InstanceState{
	InstancePending: {InstanceWaiting},
	InstanceWaiting: {InstanceReady, InstanceSkipped},
	InstanceReady:   {InstanceRunning, InstanceFailed},
	InstanceRunning: {InstanceSucceeded, InstanceFailed, InstanceKilled},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s InstanceState) CanTransitionTo(next InstanceState) bool {
	for _, allowed := range ValidInstanceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome is the result an execution backend reports for a submitted instance.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)
