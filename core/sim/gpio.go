//go:build !tinygo

package sim

import (
	"sync"

	"github.com/pkg/errors"

	"spibus/core"
)

// PinCount is the number of simulated pins.
const PinCount = 30

// GPIO is an in-memory pin bank. An input wired to an output reads the
// output's level.
type GPIO struct {
	mu      sync.Mutex
	outputs [PinCount]bool
	inputs  [PinCount]bool
	levels  [PinCount]bool
	edges   [PinCount]int
	wires   map[core.GPIOPin]core.GPIOPin
}

// NewGPIO returns a bank with every pin unconfigured and low.
func NewGPIO() *GPIO {
	return &GPIO{wires: make(map[core.GPIOPin]core.GPIOPin)}
}

// Wire makes input read the level of output.
func (g *GPIO) Wire(input, output core.GPIOPin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wires[input] = output
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= PinCount {
		return errors.Errorf("no pin %d", pin)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = true
	g.inputs[pin] = false
	return nil
}

func (g *GPIO) ConfigureInput(pin core.GPIOPin, pull core.GPIOPull) error {
	if pin >= PinCount {
		return errors.Errorf("no pin %d", pin)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs[pin] = true
	g.outputs[pin] = false
	g.levels[pin] = pull == core.PullUp
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pin >= PinCount || !g.outputs[pin] {
		return errors.Errorf("pin %d is not an output", pin)
	}
	if g.levels[pin] != value {
		g.edges[pin]++
	}
	g.levels[pin] = value
	return nil
}

func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	if pin >= PinCount {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if src, ok := g.wires[pin]; ok {
		pin = src
	}
	return g.levels[pin]
}

// Level returns the current level of pin.
func (g *GPIO) Level(pin core.GPIOPin) bool {
	return g.ReadPin(pin)
}

// Edges returns how many times an output changed level.
func (g *GPIO) Edges(pin core.GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[pin]
}
