// SPDX-License-Identifier: MIT
package pump

// State is the pump's position in its lifecycle.
type State uint32

const (
	// StateNoInput means no source is attached. It is the initial state.
	StateNoInput State = iota
	// StateIdle means a source is attached and no frames are flowing.
	StateIdle
	// StatePaused is reserved; every attempt to enter it fails.
	StatePaused
	// StateProcessing means the worker is pumping frames.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateNoInput:
		return "NoInput"
	case StateIdle:
		return "Idle"
	case StatePaused:
		return "Paused"
	case StateProcessing:
		return "Processing"
	default:
		return "Unknown"
	}
}
