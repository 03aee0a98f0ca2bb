package robot

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"ada/protocol"
)

// Dictionary is the firmware's self-description, as returned by identify
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	byName map[string]message
}

// message is one command or response resolved by name
type message struct {
	id     uint16
	name   string
	format string
}

// index builds the name lookup from the signature maps
func (d *Dictionary) index() {
	d.byName = make(map[string]message, len(d.Commands)+len(d.Responses))
	for _, set := range []map[string]int{d.Commands, d.Responses} {
		for sig, id := range set {
			name, format, _ := strings.Cut(sig, " ")
			d.byName[name] = message{id: uint16(id), name: name, format: format}
		}
	}
}

func (d *Dictionary) lookup(name string) (message, error) {
	m, ok := d.byName[name]
	if !ok {
		return message{}, fmt.Errorf("firmware does not support %q", name)
	}
	return m, nil
}

// Enum returns the wire value of a symbolic name
func (d *Dictionary) Enum(enum, name string) (int, bool) {
	v, ok := d.Enumerations[enum][name]
	return v, ok
}

// Print writes a readable summary of the dictionary to w
func (d *Dictionary) Print(w io.Writer) {
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}

	fmt.Fprintf(w, "\nCommands (%d):\n", len(d.Commands))
	printByID(w, d.Commands)

	fmt.Fprintf(w, "\nResponses (%d):\n", len(d.Responses))
	printByID(w, d.Responses)

	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(d.Enumerations))
		for _, name := range sortedKeys(d.Enumerations) {
			values := d.Enumerations[name]
			names := sortedKeys(values)
			sort.Slice(names, func(i, j int) bool { return values[names[i]] < values[names[j]] })
			fmt.Fprintf(w, "  %s: %s\n", name, strings.Join(names, ", "))
		}
	}
}

func printByID(w io.Writer, m map[string]int) {
	sigs := sortedKeys(m)
	sort.Slice(sigs, func(i, j int) bool { return m[sigs[i]] < m[sigs[j]] })
	for _, sig := range sigs {
		fmt.Fprintf(w, "  [%d] %s\n", m[sig], sig)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeFields decodes a response payload according to its format.
// Integer fields are returned in order; a %*s field is returned as bytes.
func decodeFields(format string, payload []byte) ([]uint32, []byte, error) {
	var ints []uint32
	var raw []byte
	for _, field := range strings.Fields(format) {
		_, typ, ok := strings.Cut(field, "=")
		if !ok {
			return nil, nil, fmt.Errorf("malformed field %q", field)
		}
		if typ == "%*s" || typ == "%s" || typ == "%.*s" {
			b, err := protocol.DecodeVLQBytes(&payload)
			if err != nil {
				return nil, nil, fmt.Errorf("field %q: %w", field, err)
			}
			raw = append([]byte(nil), b...)
			continue
		}
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", field, err)
		}
		ints = append(ints, v)
	}
	return ints, raw, nil
}
