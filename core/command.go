// Package core is the firmware side of the SPI bridge: a command registry
// and dictionary, the GPIO and SPI hardware abstraction layers registered
// by each target, and the SPI commands that run host transfers on local
// buses.
package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for unregistered IDs.
var ErrUnknownCommand = errors.New("unknown command")

// CommandHandler decodes its arguments from the front of *data and runs
// the command.
type CommandHandler func(data *[]byte) error

// Command is a registered command or response. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "oid=%c data=%*s"
	Handler CommandHandler
}

// Signature returns the dictionary key of the command.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns IDs to commands in registration order.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	byName   map[string]uint16
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry returns an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]uint16)}
}

// RegisterCommand adds a command to the global registry.
func RegisterCommand(name, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse adds an MCU to host message to the global registry.
func RegisterResponse(name, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command and returns its ID. Registering a name twice
// returns the first ID.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.byName[name] = id
	return id
}

// GetCommand looks a command up by ID.
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName looks a command up by name.
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered commands and responses.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler registered for id.
func (r *CommandRegistry) Dispatch(id uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(id)
	if !ok || cmd.Handler == nil {
		return fmt.Errorf("%w: id %d", ErrUnknownCommand, id)
	}
	if err := cmd.Handler(data); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

// CommandsAndResponses splits the registry into host to MCU commands and
// MCU to host responses, keyed by signature.
func (r *CommandRegistry) CommandsAndResponses() (commands, responses map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, cmd := range r.commands {
		if cmd.Handler != nil {
			commands[cmd.Signature()] = int(cmd.ID)
		} else {
			responses[cmd.Signature()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// Text returns one signature per line in ID order.
func (r *CommandRegistry) Text() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, cmd := range r.commands {
		b.WriteString(cmd.Signature())
		b.WriteByte('\n')
	}
	return b.String()
}

// DispatchCommand runs a command from the global registry.
func DispatchCommand(id uint16, data *[]byte) error {
	return globalRegistry.Dispatch(id, data)
}

// GetGlobalRegistry returns the registry the firmware commands live in.
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
