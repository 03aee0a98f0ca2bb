package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether debug output is active
	debugEnabled bool
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}
