package core

import (
	"errors"

	"spibus/protocol"
	"spibus/spi"
	"spibus/spi/spitest"
)

var errBadPin = errors.New("no such pin")

// fakeGPIO records pin levels. An input listed in loops reads the level of
// another pin, which wires MISO to MOSI.
type fakeGPIO struct {
	outputs map[GPIOPin]bool
	inputs  map[GPIOPin]GPIOPull
	levels  map[GPIOPin]bool
	history map[GPIOPin][]bool
	loops   map[GPIOPin]GPIOPin
	maxPin  GPIOPin
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{
		outputs: make(map[GPIOPin]bool),
		inputs:  make(map[GPIOPin]GPIOPull),
		levels:  make(map[GPIOPin]bool),
		history: make(map[GPIOPin][]bool),
		loops:   make(map[GPIOPin]GPIOPin),
		maxPin:  29,
	}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	if pin > g.maxPin {
		return errBadPin
	}
	g.outputs[pin] = true
	return nil
}

func (g *fakeGPIO) ConfigureInput(pin GPIOPin, pull GPIOPull) error {
	if pin > g.maxPin {
		return errBadPin
	}
	g.inputs[pin] = pull
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	if !g.outputs[pin] {
		return errBadPin
	}
	g.levels[pin] = value
	g.history[pin] = append(g.history[pin], value)
	return nil
}

func (g *fakeGPIO) ReadPin(pin GPIOPin) bool {
	if src, ok := g.loops[pin]; ok {
		return g.levels[src]
	}
	return g.levels[pin]
}

// fakeSPIDriver hands out one test bus per bus ID.
type fakeSPIDriver struct {
	buses   map[SPIBusID]*spitest.Bus
	configs []SPIConfig
}

func newFakeSPIDriver() *fakeSPIDriver {
	return &fakeSPIDriver{buses: make(map[SPIBusID]*spitest.Bus)}
}

func (d *fakeSPIDriver) ConfigureBus(config SPIConfig) (spi.Bus, error) {
	if config.BusID > 1 {
		return nil, errors.New("no such bus")
	}
	d.configs = append(d.configs, config)
	bus, ok := d.buses[config.BusID]
	if !ok {
		bus = spitest.NewBus()
		d.buses[config.BusID] = bus
	}
	return bus, nil
}

func (d *fakeSPIDriver) BusInfo() map[SPIBusID]string {
	return map[SPIBusID]string{0: "spi0", 1: "spi1"}
}

type sentResponse struct {
	name    string
	payload []byte
}

// recordSender captures responses instead of framing them.
type recordSender struct {
	sent []sentResponse
}

func (r *recordSender) SendCommand(cmdID uint16, args func(output protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	if args != nil {
		args(out)
	}
	cmd, _ := globalRegistry.GetCommand(cmdID)
	r.sent = append(r.sent, sentResponse{name: cmd.Name, payload: append([]byte(nil), out.Result()...)})
}

// encodeArgs encodes uint32 values as VLQs and byte slices as %*s strings.
func encodeArgs(args ...interface{}) []byte {
	out := protocol.NewScratchOutput()
	for _, a := range args {
		switch v := a.(type) {
		case int:
			protocol.EncodeVLQUint(out, uint32(v))
		case []byte:
			protocol.EncodeVLQBytes(out, v)
		default:
			panic("unsupported argument")
		}
	}
	return append([]byte(nil), out.Result()...)
}
