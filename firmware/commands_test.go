package firmware

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ada/core"
	"ada/protocol"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

// mockPins answers every ping with a fixed echo
type mockPins struct {
	pulse uint32
	err   error
	pings int
}

func (m *mockPins) ConfigureOutput(core.GPIOPin) error { return nil }
func (m *mockPins) ConfigureInput(core.GPIOPin) error  { return nil }
func (m *mockPins) SetPin(core.GPIOPin, bool) error    { return nil }
func (m *mockPins) GetPin(core.GPIOPin) (bool, error)  { return false, nil }

func (m *mockPins) PulseIn(core.GPIOPin, bool, time.Duration) (uint32, error) {
	m.pings++
	return m.pulse, m.err
}

// fakeBus serves little-endian register values and records writes
type fakeBus struct {
	regs   map[uint8]uint16
	writes [][]byte
	addrs  []uint16
	err    error
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.addrs = append(f.addrs, addr)
	if f.err != nil {
		return f.err
	}
	if len(r) == 0 {
		f.writes = append(f.writes, append([]byte(nil), w...))
		return nil
	}
	var reg uint8
	if len(w) > 0 {
		reg = w[0] &^ 0x80
	}
	v := f.regs[reg]
	for i := range r {
		if i < 2 {
			r[i] = uint8(v >> (8 * i))
		} else {
			r[i] = 0
		}
	}
	return nil
}

// setupFirmware wires a fresh registry and transport around s
func setupFirmware(t *testing.T, s Sensors, bus core.I2CBus) *protocol.ScratchOutput {
	t.Helper()

	core.ResetGlobalRegistry()
	core.InitCoreCommands()
	InitSensorCommands(s)
	core.GetGlobalDictionary().BuildDictionary()

	core.SetI2CBus(bus)
	core.DelayMicroseconds = func(uint32) {}
	core.DelayMilliseconds = func(uint32) {}

	output := protocol.NewScratchOutput()
	core.SetGlobalTransport(protocol.NewTransport(output, nil))

	t.Cleanup(func() {
		core.SetGlobalTransport(nil)
		core.SetI2CBus(nil)
		core.ResetDelays()
		core.ResetFirmwareState()
		core.ResetGlobalRegistry()
		sensors = Sensors{}
	})
	return output
}

// call dispatches name with args encoded as the command format expects.
// uint32 and int32 encode as VLQ integers, []byte as a byte string.
func call(t *testing.T, name string, args ...interface{}) error {
	t.Helper()
	cmd, ok := core.GetGlobalRegistry().GetCommandByName(name)
	if !ok {
		t.Fatalf("Command %q not registered", name)
	}

	buf := protocol.NewScratchOutput()
	for _, a := range args {
		switch v := a.(type) {
		case uint32:
			protocol.EncodeVLQUint(buf, v)
		case int32:
			protocol.EncodeVLQInt(buf, v)
		case []byte:
			protocol.EncodeVLQBytes(buf, v)
		default:
			t.Fatalf("Unsupported argument type %T", a)
		}
	}
	data := append([]byte(nil), buf.Result()...)
	return core.DispatchCommand(cmd.ID, &data)
}

type response struct {
	Name   string
	Fields []uint32
	Bytes  []byte
}

// responses decodes every frame written to output. Trailing byte-string
// fields (%*s) land in Bytes.
func responses(t *testing.T, output *protocol.ScratchOutput) []response {
	t.Helper()

	var out []response
	data := output.Result()
	for len(data) > 0 {
		length := int(data[protocol.MessagePositionLen])
		if length < protocol.MessageLengthMin || length > len(data) {
			t.Fatalf("Bad frame length %d", length)
		}
		payload := data[protocol.MessageHeaderSize : length-protocol.MessageTrailerSize]
		data = data[length:]

		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("Decode response ID: %v", err)
		}
		cmd, ok := core.GetGlobalRegistry().GetCommand(uint16(id))
		if !ok {
			t.Fatalf("Unknown response ID %d", id)
		}

		resp := response{Name: cmd.Name}
		fields := formatFields(cmd.Format)
		for i, f := range fields {
			if f == "%*s" && i == len(fields)-1 {
				b, err := protocol.DecodeVLQBytes(&payload)
				if err != nil {
					t.Fatalf("Decode %s bytes: %v", cmd.Name, err)
				}
				resp.Bytes = append([]byte{}, b...)
				continue
			}
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				t.Fatalf("Decode %s field %d: %v", cmd.Name, i, err)
			}
			resp.Fields = append(resp.Fields, v)
		}
		out = append(out, resp)
	}
	output.Reset()
	return out
}

func formatFields(format string) []string {
	var fields []string
	for i := 0; i < len(format); i++ {
		if format[i] != '=' {
			continue
		}
		j := i + 1
		for j < len(format) && format[j] != ' ' {
			j++
		}
		fields = append(fields, format[i+1:j])
		i = j
	}
	return fields
}

func newColorBus(r, g, b, c uint16) *fakeBus {
	return &fakeBus{regs: map[uint8]uint16{0x16: r, 0x18: g, 0x1A: b, 0x14: c, 0x12: 0x44}}
}

func TestQueryDistance(t *testing.T) {
	testCases := []struct {
		name     string
		unit     uint32
		pulse    uint32
		pulseErr error
		want     []uint32
	}{
		{"centimeters", uint32(ultrasound.Centimeters), 1000, nil, []uint32{0, uint32(StatusOK), 17}},
		{"inches", uint32(ultrasound.Inches), 1000, nil, []uint32{1, uint32(StatusOK), 6}},
		{"microseconds", uint32(ultrasound.Microseconds), 1000, nil, []uint32{2, uint32(StatusOK), 1000}},
		{"zero echo", uint32(ultrasound.Centimeters), 0, nil, []uint32{0, uint32(StatusOK), 0}},
		{"unknown unit", 7, 1000, nil, []uint32{7, uint32(StatusInvalidArgument), 0}},
		{"no echo", uint32(ultrasound.Centimeters), 0, core.ErrPulseTimeout, []uint32{0, uint32(StatusNoEcho), 0}},
		{"pin fault", uint32(ultrasound.Centimeters), 0, errors.New("pin"), []uint32{0, uint32(StatusBusError), 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pins := &mockPins{pulse: tc.pulse, err: tc.pulseErr}
			ranger := ultrasound.New(pins, ultrasound.Config{Trigger: 15, Echo: 14})
			output := setupFirmware(t, Sensors{Ranger: ranger}, nil)

			if err := call(t, "query_distance", tc.unit); err != nil {
				t.Fatalf("query_distance failed: %v", err)
			}

			want := []response{{Name: "distance_state", Fields: tc.want}}
			if diff := cmp.Diff(want, responses(t, output)); diff != "" {
				t.Errorf("Response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueryDistanceUnknownUnitSkipsPing(t *testing.T) {
	pins := &mockPins{pulse: 500}
	ranger := ultrasound.New(pins, ultrasound.Config{})
	setupFirmware(t, Sensors{Ranger: ranger}, nil)

	if err := call(t, "query_distance", uint32(3)); err != nil {
		t.Fatalf("query_distance failed: %v", err)
	}
	if pins.pings != 0 {
		t.Errorf("Unknown unit should not fire a ping, got %d", pins.pings)
	}
}

func TestQueryDistanceNotConfigured(t *testing.T) {
	output := setupFirmware(t, Sensors{}, nil)

	if err := call(t, "query_distance", uint32(0)); err != nil {
		t.Fatalf("query_distance failed: %v", err)
	}
	want := []response{{Name: "distance_state", Fields: []uint32{0, uint32(StatusNotConfigured), 0}}}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryColor(t *testing.T) {
	bus := newColorBus(0x100, 0x200, 0x300, 0x400)
	output := setupFirmware(t, Sensors{Color: color.New(bus, color.Config{})}, bus)

	for i := 0; i < 2; i++ {
		if err := call(t, "query_color"); err != nil {
			t.Fatalf("query_color failed: %v", err)
		}
	}

	fields := []uint32{uint32(StatusOK), 0x100, 0x200, 0x300, 0x400}
	want := []response{{Name: "color_state", Fields: fields}, {Name: "color_state", Fields: fields}}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}

	wantWrites := [][]byte{{0x80, 0x01}, {0x80, 0x03}}
	if diff := cmp.Diff(wantWrites, bus.writes); diff != "" {
		t.Errorf("Power-on should happen once (-want +got):\n%s", diff)
	}
}

func TestQueryColorID(t *testing.T) {
	testCases := []struct {
		name   string
		sensor bool
		busErr error
		want   []uint32
	}{
		{"present", true, nil, []uint32{uint32(StatusOK), 0x44}},
		{"not answering", true, errors.New("nack"), []uint32{uint32(StatusBusError), 0}},
		{"no sensor", false, nil, []uint32{uint32(StatusNotConfigured), 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := newColorBus(0, 0, 0, 0)
			bus.err = tc.busErr
			s := Sensors{}
			if tc.sensor {
				s.Color = color.New(bus, color.Config{})
			}
			output := setupFirmware(t, s, bus)

			if err := call(t, "query_color_id"); err != nil {
				t.Fatalf("query_color_id failed: %v", err)
			}
			want := []response{{Name: "color_id_state", Fields: tc.want}}
			if diff := cmp.Diff(want, responses(t, output)); diff != "" {
				t.Errorf("Response mismatch (-want +got):\n%s", diff)
			}
			if len(bus.writes) != 0 {
				t.Errorf("Reading the ID should not power the sensor on, got %v", bus.writes)
			}
		})
	}
}

func TestQueryColorBusError(t *testing.T) {
	bus := newColorBus(1, 2, 3, 4)
	bus.err = errors.New("nack")
	output := setupFirmware(t, Sensors{Color: color.New(bus, color.Config{})}, bus)

	if err := call(t, "query_color"); err != nil {
		t.Fatalf("query_color failed: %v", err)
	}
	want := []response{{Name: "color_state", Fields: []uint32{uint32(StatusBusError), 0, 0, 0, 0}}}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryColorChannel(t *testing.T) {
	bus := newColorBus(10, 20, 30, 40)
	output := setupFirmware(t, Sensors{Color: color.New(bus, color.Config{})}, bus)

	testCases := []struct {
		channel uint32
		want    []uint32
	}{
		{uint32(color.Red), []uint32{0, uint32(StatusOK), 10}},
		{uint32(color.Green), []uint32{1, uint32(StatusOK), 20}},
		{uint32(color.Blue), []uint32{2, uint32(StatusOK), 30}},
		{uint32(color.Clear), []uint32{3, uint32(StatusOK), 40}},
		{9, []uint32{9, uint32(StatusInvalidArgument), 0}},
	}

	for _, tc := range testCases {
		if err := call(t, "query_color_channel", tc.channel); err != nil {
			t.Fatalf("query_color_channel failed: %v", err)
		}
		want := []response{{Name: "color_channel_state", Fields: tc.want}}
		if diff := cmp.Diff(want, responses(t, output)); diff != "" {
			t.Errorf("Channel %d mismatch (-want +got):\n%s", tc.channel, diff)
		}
	}
}

func TestQueryColorMatch(t *testing.T) {
	testCases := []struct {
		name      string
		raw       [3]uint16
		rgb       uint32
		tolerance int32
		want      []uint32
	}{
		{"red matches red", [3]uint16{4000, 0, 0}, 0xFF0000, 10, []uint32{uint32(StatusOK), 1, 0}},
		{"red vs white at default", [3]uint16{4000, 0, 0}, 0xFFFFFF, -1, []uint32{uint32(StatusOK), 0, 360}},
		{"black vs white", [3]uint16{0, 0, 0}, 0xFFFFFF, 120, []uint32{uint32(StatusOK), 0, 441}},
		{"target out of range", [3]uint16{1, 1, 1}, 0x1000000, 120, []uint32{uint32(StatusInvalidArgument), 0, 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := newColorBus(tc.raw[0], tc.raw[1], tc.raw[2], 0)
			output := setupFirmware(t, Sensors{Color: color.New(bus, color.Config{})}, bus)

			if err := call(t, "query_color_match", tc.rgb, tc.tolerance); err != nil {
				t.Fatalf("query_color_match failed: %v", err)
			}
			want := []response{{Name: "color_match_state", Fields: tc.want}}
			if diff := cmp.Diff(want, responses(t, output)); diff != "" {
				t.Errorf("Response mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestI2CRead(t *testing.T) {
	bus := newColorBus(0, 0, 0, 0)
	output := setupFirmware(t, Sensors{}, bus)

	if err := call(t, "i2c_read", uint32(0x29), []byte{0x92}, uint32(1)); err != nil {
		t.Fatalf("i2c_read failed: %v", err)
	}
	if err := call(t, "i2c_read", uint32(0x29), []byte{0x92}, uint32(0)); err != nil {
		t.Fatalf("i2c_read failed: %v", err)
	}

	want := []response{
		{Name: "i2c_read_response", Fields: []uint32{0x29, uint32(StatusOK)}, Bytes: []byte{0x44}},
		{Name: "i2c_read_response", Fields: []uint32{0x29, uint32(StatusInvalidArgument)}, Bytes: []byte{}},
	}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CReadNoBus(t *testing.T) {
	output := setupFirmware(t, Sensors{}, nil)

	if err := call(t, "i2c_read", uint32(0x29), []byte{}, uint32(2)); err != nil {
		t.Fatalf("i2c_read failed: %v", err)
	}
	want := []response{{Name: "i2c_read_response", Fields: []uint32{0x29, uint32(StatusNotConfigured)}, Bytes: []byte{}}}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CWrite(t *testing.T) {
	bus := &fakeBus{}
	output := setupFirmware(t, Sensors{}, bus)

	if err := call(t, "i2c_write", uint32(0x29), []byte{0x80, 0x03}); err != nil {
		t.Fatalf("i2c_write failed: %v", err)
	}
	if diff := cmp.Diff([][]byte{{0x80, 0x03}}, bus.writes); diff != "" {
		t.Errorf("Writes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint16{0x29}, bus.addrs); diff != "" {
		t.Errorf("Address mismatch (-want +got):\n%s", diff)
	}
	if got := responses(t, output); len(got) != 0 {
		t.Errorf("i2c_write should not respond, got %v", got)
	}
}

func TestI2CAddressOutOfRange(t *testing.T) {
	bus := newColorBus(0, 0, 0, 0)
	output := setupFirmware(t, Sensors{}, bus)

	// 0x1A9 and 0xA9 would both land on 0x29 if masked to 7 bits
	for _, addr := range []uint32{0x1A9, 0xA9, 0x80} {
		if err := call(t, "i2c_write", addr, []byte{0x80, 0x03}); err != nil {
			t.Fatalf("i2c_write(%#x) failed: %v", addr, err)
		}
		if err := call(t, "i2c_read", addr, []byte{0x92}, uint32(1)); err != nil {
			t.Fatalf("i2c_read(%#x) failed: %v", addr, err)
		}
	}

	if len(bus.addrs) != 0 {
		t.Errorf("Out-of-range addresses reached the bus: %#x", bus.addrs)
	}
	if core.IsShutdown() {
		t.Error("A dropped write should not shut the firmware down")
	}
	want := []response{
		{Name: "i2c_read_response", Fields: []uint32{0x1A9, uint32(StatusInvalidArgument)}, Bytes: []byte{}},
		{Name: "i2c_read_response", Fields: []uint32{0xA9, uint32(StatusInvalidArgument)}, Bytes: []byte{}},
		{Name: "i2c_read_response", Fields: []uint32{0x80, uint32(StatusInvalidArgument)}, Bytes: []byte{}},
	}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestI2CWriteErrorShutsDown(t *testing.T) {
	bus := &fakeBus{err: errors.New("nack")}
	pins := &mockPins{pulse: 1000}
	output := setupFirmware(t, Sensors{Ranger: ultrasound.New(pins, ultrasound.Config{})}, bus)

	if err := call(t, "i2c_write", uint32(0x29), []byte{0x00}); err == nil {
		t.Fatal("Expected the bus error to propagate")
	}
	if !core.IsShutdown() {
		t.Fatal("A failed write should shut the firmware down")
	}

	if err := call(t, "query_distance", uint32(0)); err != nil {
		t.Fatalf("query_distance failed: %v", err)
	}
	want := []response{{Name: "distance_state", Fields: []uint32{0, uint32(StatusNotConfigured), 0}}}
	if diff := cmp.Diff(want, responses(t, output)); diff != "" {
		t.Errorf("Response mismatch (-want +got):\n%s", diff)
	}
}

func TestDictionaryDescribesSensors(t *testing.T) {
	setupFirmware(t, Sensors{}, nil)

	var dict struct {
		Commands     map[string]int            `json:"commands"`
		Responses    map[string]int            `json:"responses"`
		Enumerations map[string]map[string]int `json:"enumerations"`
		Config       map[string]string         `json:"config"`
	}
	if err := json.Unmarshal(core.GetGlobalDictionary().Generate(), &dict); err != nil {
		t.Fatalf("Dictionary is not valid JSON: %v", err)
	}

	if dict.Commands["identify offset=%u count=%c"] != 1 {
		t.Errorf("identify should keep ID 1, got %v", dict.Commands)
	}
	for _, sig := range []string{
		"query_distance unit=%c",
		"query_color",
		"query_color_channel channel=%c",
		"query_color_match rgb=%u tolerance=%i",
		"query_color_id",
		"i2c_read addr=%c reg=%*s read_len=%c",
	} {
		if _, ok := dict.Commands[sig]; !ok {
			t.Errorf("Missing command %q", sig)
		}
	}
	if _, ok := dict.Responses["color_match_state status=%c match=%c distance=%u"]; !ok {
		t.Error("Missing color_match_state response")
	}

	wantUnits := map[string]int{"cm": 0, "inches": 1, "microseconds": 2}
	if diff := cmp.Diff(wantUnits, dict.Enumerations["distance_unit"]); diff != "" {
		t.Errorf("distance_unit mismatch (-want +got):\n%s", diff)
	}
	if dict.Enumerations["color_channel"]["clear"] != 3 {
		t.Errorf("clear channel should be 3, got %v", dict.Enumerations["color_channel"])
	}
	if dict.Config["COLOR_DEFAULT_TOLERANCE"] != "120" {
		t.Errorf("COLOR_DEFAULT_TOLERANCE = %q", dict.Config["COLOR_DEFAULT_TOLERANCE"])
	}
}
