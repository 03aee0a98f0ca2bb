package core

import (
	"errors"
	"strings"
	"sync"
)

// CommandHandler handles a command with raw frame data.
// The handler decodes its own arguments from the data pointer.
type CommandHandler func(data *[]byte) error

// Command is a registered host-to-firmware command or firmware-to-host
// response. Responses have a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "unit=%c"
	Handler CommandHandler
}

// Signature returns the dictionary key for the command ("name format").
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry holds all registered commands
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand registers a command handler in the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (firmware -> host)
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command to the registry. Registering an existing name
// returns the ID it already has.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := r.nextID
	r.nextID++

	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.nameToID[name] = id

	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.New("unknown command ID: " + Itoa(int(cmdID)))
	}
	if cmd.Handler == nil {
		return errors.New("command " + cmd.Name + " is a response")
	}
	return cmd.Handler(data)
}

// GetCommandsAndResponses splits the registry into commands (with handlers)
// and responses (without), keyed by signature.
func (r *CommandRegistry) GetCommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)

	for id, cmd := range r.commands {
		if cmd.Handler != nil {
			commands[cmd.Signature()] = int(id)
		} else {
			responses[cmd.Signature()] = int(id)
		}
	}

	return commands, responses
}

// GetDictionary returns one "name format" line per command, in ID order
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	for i := uint16(0); i < r.nextID; i++ {
		if cmd, ok := r.commands[i]; ok {
			sb.WriteString(cmd.Signature())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}

// ResetGlobalRegistry replaces the global registry and dictionary with
// empty ones. Targets call it once at boot; tests call it per case.
func ResetGlobalRegistry() {
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
}
