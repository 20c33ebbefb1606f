//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"runtime"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"spibus/core"
)

var (
	errPIOMode    = errors.New("PIO SPI supports modes 0 and 1")
	errPIOTimeout = errors.New("PIO SPI timeout")
	errNoPIOSM    = errors.New("no free PIO state machine")
)

// Two PIO cycles per clock edge.
const pioCyclesPerBit = 4

// cpha0: data out with SCK low, sample on the rising edge.
func buildSPICPHA0Program() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 1}
	return []uint16{
		asm.Out(rp2pio.OutDestPins, 1).Side(0).Delay(1).Encode(),
		asm.In(rp2pio.InSrcPins, 1).Side(1).Delay(1).Encode(),
	}
}

// cpha1: data out on the rising edge, sample on the falling edge. The first
// instruction stalls with SCK low while the FIFO is empty.
func buildSPICPHA1Program() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 1}
	return []uint16{
		asm.Out(rp2pio.OutDestX, 1).Side(0).Encode(),
		asm.Mov(rp2pio.MovDestPins, rp2pio.MovSrcX).Side(1).Delay(1).Encode(),
		asm.In(rp2pio.InSrcPins, 1).Side(0).Encode(),
	}
}

// pioAllocator hands out PIO0 state machines to PIO buses and loads each
// program once.
type pioAllocator struct {
	pio     *rp2pio.PIO
	next    uint8
	sms     map[core.SPIBusID]rp2pio.StateMachine
	offsets map[uint8]uint8
}

func newPIOAllocator() *pioAllocator {
	return &pioAllocator{
		pio:     rp2pio.PIO0,
		sms:     make(map[core.SPIBusID]rp2pio.StateMachine),
		offsets: make(map[uint8]uint8),
	}
}

func (a *pioAllocator) spi(id core.SPIBusID, cfg machine.SPIConfig) (*pioSPI, error) {
	if cfg.Mode > 1 {
		return nil, errPIOMode
	}
	sm, ok := a.sms[id]
	if !ok {
		if a.next >= 4 {
			return nil, errNoPIOSM
		}
		sm = a.pio.StateMachine(a.next)
		sm.TryClaim()
		a.next++
		a.sms[id] = sm
	}

	program := buildSPICPHA0Program()
	if cfg.Mode == 1 {
		program = buildSPICPHA1Program()
	}
	offset, ok := a.offsets[cfg.Mode]
	if !ok {
		var err error
		offset, err = a.pio.AddProgram(program, -1)
		if err != nil {
			return nil, err
		}
		a.offsets[cfg.Mode] = offset
	}

	sm.SetEnabled(false)
	pinCfg := machine.PinConfig{Mode: a.pio.PinMode()}
	cfg.SCK.Configure(pinCfg)
	cfg.SDO.Configure(pinCfg)
	cfg.SDI.Configure(pinCfg)

	smCfg := rp2pio.DefaultStateMachineConfig()
	smCfg.SetWrap(offset+uint8(len(program))-1, offset)
	smCfg.SetSidesetParams(1, false, false)
	smCfg.SetSidesetPins(cfg.SCK)
	smCfg.SetOutPins(cfg.SDO, 1)
	smCfg.SetInPins(cfg.SDI)
	// MSB first, autopull and autopush every byte.
	smCfg.SetOutShift(false, true, 8)
	smCfg.SetInShift(false, true, 8)
	whole, frac := pioClockDivider(cfg.Frequency)
	smCfg.SetClkDivIntFrac(whole, frac)

	sm.Init(offset, smCfg)
	sm.SetPindirsConsecutive(cfg.SCK, 1, true)
	sm.SetPindirsConsecutive(cfg.SDO, 1, true)
	sm.SetPindirsConsecutive(cfg.SDI, 1, false)
	sm.SetPinsConsecutive(cfg.SCK, 1, false)
	sm.SetPinsConsecutive(cfg.SDO, 1, false)
	sm.ClearFIFOs()
	sm.SetEnabled(true)
	return &pioSPI{sm: sm}, nil
}

// pioClockDivider returns the 16.8 divider giving frequency bits per second.
func pioClockDivider(frequency uint32) (uint16, uint8) {
	if frequency == 0 {
		frequency = 4000000
	}
	div := uint64(machine.CPUFrequency()) * 256 / (uint64(frequency) * pioCyclesPerBit)
	if div < 256 {
		div = 256
	}
	if div > 0xFFFFFF {
		div = 0xFFFFFF
	}
	return uint16(div >> 8), uint8(div)
}

// pioSPI is a drivers.SPI on one PIO state machine.
type pioSPI struct {
	sm rp2pio.StateMachine
}

// pioRetries bounds the FIFO polling per byte.
const pioRetries = 10000

// Tx sends w while reading into r. Either may be nil; when both are set
// they must have the same length.
func (p *pioSPI) Tx(w, r []byte) error {
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != n {
		return errors.New("PIO SPI: buffer lengths differ")
	}
	for i := 0; i < n; i++ {
		var b byte
		if w != nil {
			b = w[i]
		}
		got, err := p.Transfer(b)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = got
		}
	}
	return nil
}

// Transfer exchanges one byte.
func (p *pioSPI) Transfer(b byte) (byte, error) {
	retries := pioRetries
	for p.sm.IsTxFIFOFull() {
		if retries--; retries == 0 {
			return 0, errPIOTimeout
		}
		runtime.Gosched()
	}
	// Left-justified: the output shifter takes bits from the top.
	p.sm.TxPut(uint32(b) << 24)

	retries = pioRetries
	for p.sm.IsRxFIFOEmpty() {
		if retries--; retries == 0 {
			return 0, errPIOTimeout
		}
		runtime.Gosched()
	}
	return byte(p.sm.RxGet()), nil
}
