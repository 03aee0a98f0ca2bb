package core

import "time"

// Delay hooks. Sensor code blocks through these so targets can swap in a
// hardware timer and tests can observe the waits without sleeping.
var (
	// DelayMicroseconds spins for a short, precise interval.
	DelayMicroseconds = busyWaitMicros

	// DelayMilliseconds yields to the scheduler for coarse waits.
	DelayMilliseconds = sleepMillis
)

func busyWaitMicros(us uint32) {
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

func sleepMillis(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// ResetDelays restores the default delay implementations.
func ResetDelays() {
	DelayMicroseconds = busyWaitMicros
	DelayMilliseconds = sleepMillis
}

// bootTime is captured by TimerInit and used for uptime reporting.
var bootTime time.Time

// TimerInit records the boot instant.
func TimerInit() {
	bootTime = time.Now()
}

// GetUptime returns microseconds elapsed since TimerInit.
func GetUptime() uint64 {
	if bootTime.IsZero() {
		return 0
	}
	return uint64(time.Since(bootTime) / time.Microsecond)
}
