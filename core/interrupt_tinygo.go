//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt state
type State = interrupt.State

// DisableInterrupts masks interrupts for a short timing-critical section
// and returns the previous state.
func DisableInterrupts() State {
	return interrupt.Disable()
}

// RestoreInterrupts restores the interrupt state
func RestoreInterrupts(state State) {
	interrupt.Restore(state)
}
