//go:build microbit && !microbit_v2

package main

import "device/nrf"

// The nRF51 has no TIMER3, and TIMER1/2 stop at 16 bits. TIMER0 is the
// only 32-bit timer there.
func initMicrosTimer() {
	nrf.TIMER0.TASKS_STOP.Set(1)
	nrf.TIMER0.MODE.Set(nrf.TIMER_MODE_MODE_Timer)
	nrf.TIMER0.BITMODE.Set(nrf.TIMER_BITMODE_BITMODE_32Bit)
	nrf.TIMER0.PRESCALER.Set(4) // 16MHz >> 4
	nrf.TIMER0.TASKS_CLEAR.Set(1)
	nrf.TIMER0.TASKS_START.Set(1)
}

func micros() uint32 {
	nrf.TIMER0.TASKS_CAPTURE[0].Set(1)
	return nrf.TIMER0.CC[0].Get()
}
