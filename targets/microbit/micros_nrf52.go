//go:build microbit_v2

package main

import "device/nrf"

// TIMER3 runs free at 1MHz as the microsecond clock; the runtime keeps
// RTC1 and its 30µs tick for itself.
func initMicrosTimer() {
	nrf.TIMER3.TASKS_STOP.Set(1)
	nrf.TIMER3.MODE.Set(nrf.TIMER_MODE_MODE_Timer)
	nrf.TIMER3.BITMODE.Set(nrf.TIMER_BITMODE_BITMODE_32Bit)
	nrf.TIMER3.PRESCALER.Set(4) // 16MHz >> 4
	nrf.TIMER3.TASKS_CLEAR.Set(1)
	nrf.TIMER3.TASKS_START.Set(1)
}

func micros() uint32 {
	nrf.TIMER3.TASKS_CAPTURE[0].Set(1)
	return nrf.TIMER3.CC[0].Get()
}
