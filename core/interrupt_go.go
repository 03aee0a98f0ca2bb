//go:build !tinygo

package core

// State is the saved interrupt state; meaningless off-target
type State uintptr

// DisableInterrupts is a no-op on regular Go (for testing)
func DisableInterrupts() State {
	return 0
}

// RestoreInterrupts is a no-op on regular Go (for testing)
func RestoreInterrupts(state State) {}
