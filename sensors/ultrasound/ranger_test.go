package ultrasound

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ada/core"
)

// mockPins records pin activity and replays a canned echo
type mockPins struct {
	events   []string
	outputs  map[core.GPIOPin]bool
	inputs   map[core.GPIOPin]bool
	level    map[core.GPIOPin]bool
	pulse    uint32
	pulseErr error
	timeouts []time.Duration
}

func newMockPins(pulse uint32) *mockPins {
	return &mockPins{
		outputs: make(map[core.GPIOPin]bool),
		inputs:  make(map[core.GPIOPin]bool),
		level:   make(map[core.GPIOPin]bool),
		pulse:   pulse,
	}
}

func (m *mockPins) ConfigureOutput(pin core.GPIOPin) error {
	m.outputs[pin] = true
	return nil
}

func (m *mockPins) ConfigureInput(pin core.GPIOPin) error {
	m.inputs[pin] = true
	return nil
}

func (m *mockPins) SetPin(pin core.GPIOPin, value bool) error {
	m.level[pin] = value
	if value {
		m.events = append(m.events, "high")
	} else {
		m.events = append(m.events, "low")
	}
	return nil
}

func (m *mockPins) GetPin(pin core.GPIOPin) (bool, error) {
	return m.level[pin], nil
}

func (m *mockPins) PulseIn(pin core.GPIOPin, level bool, timeout time.Duration) (uint32, error) {
	m.events = append(m.events, "pulse")
	m.timeouts = append(m.timeouts, timeout)
	if m.pulseErr != nil {
		return 0, m.pulseErr
	}
	return m.pulse, nil
}

// setupMockDelay records busy waits instead of spinning
func setupMockDelay(t *testing.T, events *[]string, waits *[]uint32) {
	t.Helper()
	core.DelayMicroseconds = func(us uint32) {
		*events = append(*events, "wait")
		*waits = append(*waits, us)
	}
	t.Cleanup(core.ResetDelays)
}

const (
	trigPin core.GPIOPin = 15
	echoPin core.GPIOPin = 14
)

func TestMeasureDistanceSequence(t *testing.T) {
	pins := newMockPins(1000)
	var waits []uint32
	setupMockDelay(t, &pins.events, &waits)

	ranger := New(pins, Config{Trigger: trigPin, Echo: echoPin})

	got, err := ranger.MeasureDistance(Centimeters)
	if err != nil {
		t.Fatalf("MeasureDistance failed: %v", err)
	}
	if got != 17 {
		t.Errorf("Expected 17 cm for a 1000µs echo, got %d", got)
	}

	want := []string{"high", "wait", "low", "pulse"}
	if diff := cmp.Diff(want, pins.events); diff != "" {
		t.Errorf("Pin sequence mismatch (-want +got):\n%s", diff)
	}
	if len(waits) != 1 || waits[0] != TriggerPulseUS {
		t.Errorf("Expected a single %dµs trigger hold, got %v", TriggerPulseUS, waits)
	}
	if pins.level[trigPin] {
		t.Error("Trigger should be left low")
	}
	if pins.timeouts[0] != DefaultEchoTimeout {
		t.Errorf("Expected default echo timeout %v, got %v", DefaultEchoTimeout, pins.timeouts[0])
	}
}

func TestMeasureDistanceUnits(t *testing.T) {
	testCases := []struct {
		name     string
		pulse    uint32
		unit     Unit
		expected uint32
	}{
		{"1000us in cm", 1000, Centimeters, 17},
		{"1000us in inches", 1000, Inches, 6},
		{"1000us raw", 1000, Microseconds, 1000},
		{"zero echo", 0, Centimeters, 0},
		{"zero echo raw", 0, Microseconds, 0},
		{"4m round trip", 23530, Centimeters, 400},
		{"just under 1cm", 58, Centimeters, 0},
		{"exactly 1cm", 59, Centimeters, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pins := newMockPins(tc.pulse)
			var waits []uint32
			setupMockDelay(t, &pins.events, &waits)

			got, err := New(pins, Config{Trigger: trigPin, Echo: echoPin}).MeasureDistance(tc.unit)
			if err != nil {
				t.Fatalf("MeasureDistance failed: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestMeasureDistanceNoEcho(t *testing.T) {
	pins := newMockPins(0)
	pins.pulseErr = core.ErrPulseTimeout
	var waits []uint32
	setupMockDelay(t, &pins.events, &waits)

	ranger := New(pins, Config{Trigger: trigPin, Echo: echoPin, EchoTimeout: 5 * time.Millisecond})

	_, err := ranger.MeasureDistance(Centimeters)
	if !errors.Is(err, ErrNoEcho) {
		t.Errorf("Expected ErrNoEcho, got %v", err)
	}
	if pins.timeouts[0] != 5*time.Millisecond {
		t.Errorf("Expected configured timeout 5ms, got %v", pins.timeouts[0])
	}
}

func TestMeasureDistanceEchoError(t *testing.T) {
	pins := newMockPins(0)
	busErr := errors.New("pin not configured")
	pins.pulseErr = busErr
	var waits []uint32
	setupMockDelay(t, &pins.events, &waits)

	_, err := New(pins, Config{Trigger: trigPin, Echo: echoPin}).MeasureDistance(Inches)
	if !errors.Is(err, busErr) {
		t.Errorf("Expected wrapped pin error, got %v", err)
	}
	if errors.Is(err, ErrNoEcho) {
		t.Error("A pin fault must not be reported as a missing echo")
	}
}

func TestMeasureDistanceUnknownUnit(t *testing.T) {
	pins := newMockPins(1000)
	var waits []uint32
	setupMockDelay(t, &pins.events, &waits)

	_, err := New(pins, Config{Trigger: trigPin, Echo: echoPin}).MeasureDistance(Unit(7))
	if !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("Expected ErrUnknownUnit, got %v", err)
	}
	if len(pins.events) != 0 {
		t.Errorf("No pin should be touched for an invalid unit, got %v", pins.events)
	}
}

func TestConfigure(t *testing.T) {
	pins := newMockPins(0)
	ranger := New(pins, Config{Trigger: trigPin, Echo: echoPin})

	if err := ranger.Configure(); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if !pins.outputs[trigPin] || !pins.inputs[echoPin] {
		t.Errorf("Expected trigger output and echo input, got outputs=%v inputs=%v", pins.outputs, pins.inputs)
	}
	if pins.level[trigPin] {
		t.Error("Trigger should be parked low")
	}
}

// countingPins tracks how many pings overlap. A ping starts when the
// trigger goes high and ends when the echo has been timed.
type countingPins struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	pings       int
}

func (c *countingPins) ConfigureOutput(core.GPIOPin) error { return nil }

func (c *countingPins) ConfigureInput(core.GPIOPin) error { return nil }

func (c *countingPins) GetPin(core.GPIOPin) (bool, error) { return false, nil }

func (c *countingPins) SetPin(_ core.GPIOPin, value bool) error {
	if !value {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
	c.pings++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	return nil
}

func (c *countingPins) PulseIn(core.GPIOPin, bool, time.Duration) (uint32, error) {
	// Hold the echo open long enough for other callers to pile up.
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	return 1000, nil
}

func TestMeasureDistanceSerialized(t *testing.T) {
	core.DelayMicroseconds = func(uint32) {}
	t.Cleanup(core.ResetDelays)

	pins := &countingPins{}
	ranger := New(pins, Config{Trigger: trigPin, Echo: echoPin})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cm, err := ranger.MeasureDistance(Centimeters)
			if err == nil && cm != 17 {
				err = errors.New("unexpected distance")
			}
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("MeasureDistance failed: %v", err)
	}
	if pins.pings != callers {
		t.Errorf("Expected %d pings, got %d", callers, pins.pings)
	}
	if pins.maxInFlight != 1 {
		t.Errorf("Expected one ping in flight at a time, saw %d", pins.maxInFlight)
	}
}
