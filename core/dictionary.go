package core

import (
	"sort"
	"strconv"
	"sync"
)

// Version is the firmware version reported in the data dictionary
const Version = "ada-0.2.0"

// Constant is a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration maps symbolic names (units, channels) to wire values
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary describes the firmware to the host: version, constants,
// enumerations and the command/response IDs. The host retrieves it in
// chunks with the identify command.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a new dictionary backed by cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       Version,
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant to the dictionary
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cachedDict = nil
}

// AddEnumeration adds an enumeration to the dictionary.
// Empty strings keep their index but are left out of the output.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)

	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
	d.cachedDict = nil
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cachedDict = nil
}

// BuildDictionary renders and caches the dictionary. Call it once after
// every command has been registered.
func (d *Dictionary) BuildDictionary() {
	// Fetch registry data before taking our own lock to keep lock order
	// registry -> dictionary everywhere.
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cachedDict = d.buildJSONLocked(commands, responses)
	DebugPrintln("[dict] built " + Itoa(len(d.cachedDict)) + " bytes")
}

// Generate returns the dictionary JSON, building it if nothing is cached
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSONLocked(commands, responses)
}

// buildJSONLocked renders the dictionary by hand; reflection-based
// encoding/json is heavy on TinyGo. Caller must hold d.mu.
func (d *Dictionary) buildJSONLocked(commands, responses map[string]int) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":`...)
	result = strconv.AppendQuote(result, d.version)
	result = append(result, `,"build_versions":`...)
	result = strconv.AppendQuote(result, d.buildVersions)

	result = append(result, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			result = append(result, ',')
		}
		result = strconv.AppendQuote(result, name)
		result = append(result, ':')
		result = strconv.AppendQuote(result, valueToString(d.constants[name].Value))
	}

	result = append(result, `},"commands":`...)
	result = appendIDMap(result, commands)
	result = append(result, `,"responses":`...)
	result = appendIDMap(result, responses)

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				result = append(result, ',')
			}
			result = strconv.AppendQuote(result, name)
			result = append(result, `:{`...)
			first := true
			for idx, value := range d.enumerations[name].Values {
				if value == "" {
					continue
				}
				if !first {
					result = append(result, ',')
				}
				result = strconv.AppendQuote(result, value)
				result = append(result, ':')
				result = strconv.AppendInt(result, int64(idx), 10)
				first = false
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	return append(result, '}')
}

// appendIDMap writes {"signature":id,...} ordered by ID
func appendIDMap(result []byte, m map[string]int) []byte {
	sigs := make([]string, 0, len(m))
	for sig := range m {
		sigs = append(sigs, sig)
	}
	sort.Slice(sigs, func(i, j int) bool { return m[sigs[i]] < m[sigs[j]] })

	result = append(result, '{')
	for i, sig := range sigs {
		if i > 0 {
			result = append(result, ',')
		}
		result = strconv.AppendQuote(result, sig)
		result = append(result, ':')
		result = strconv.AppendInt(result, int64(m[sig]), 10)
	}
	return append(result, '}')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetChunk returns a copy of count bytes of the dictionary from offset.
// Past the end it returns an empty slice.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
