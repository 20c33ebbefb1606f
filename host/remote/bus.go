// Package remote drives an SPI device attached to a firmware board. The
// bus runs on the host; every transfer becomes a command on the serial
// link and the board performs it on its own bus.
package remote

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"spibus/host/mcu"
	"spibus/protocol"
	"spibus/spi"
)

// ChunkSize is the most bytes one transfer command carries. A transfer
// command with its response fits in one protocol block.
const ChunkSize = 48

// NoPin marks a device without a chip select on the board.
const NoPin = -1

// Config places a device on the board.
type Config struct {
	OID uint8
	// CSPin is the board pin driving chip select, or NoPin.
	CSPin        int
	CSActiveHigh bool

	// Software selects a bit-banged bus on SCLK, MOSI and MISO instead of
	// hardware bus BusID.
	Software bool
	BusID    uint32
	SCLK     uint32
	MOSI     uint32
	MISO     uint32

	Mode spi.Mode
	// Rate is the clock in Hz. Zero derives it from Mode.
	Rate uint32
}

// Bus is an spi.Bus whose transfers run on a board. Transactions map onto
// spi_begin and spi_end, so the board holds its chip select for the whole
// transaction; the select line passed to a transaction is not used.
//
// Link failures cannot surface through the Bus contract. The first one in
// a transaction is kept in Err until the next transaction starts, and the
// rest of the transaction is skipped with reads returning zero.
type Bus struct {
	spi.Base

	mcu    *mcu.MCU
	oid    uint8
	logger *zap.SugaredLogger

	ctx     context.Context
	timeout time.Duration
	err     error
}

// New configures the device on the board and returns its bus.
func New(ctx context.Context, m *mcu.MCU, cfg Config, logger *zap.SugaredLogger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &Bus{
		mcu:     m,
		oid:     cfg.OID,
		logger:  logger,
		ctx:     context.Background(),
		timeout: protocol.DefaultTimeout,
	}
	b.Base = spi.NewBase(cfg.Mode, spi.Transfers{Forward: b.writeRead, Reverse: b.writeReadReverse})

	if err := b.configure(ctx, cfg); err != nil {
		return nil, errors.Wrapf(err, "configuring oid %d", cfg.OID)
	}
	logger.Debugw("remote bus ready", "oid", cfg.OID, "mode", cfg.Mode.String(), "software", cfg.Software)
	return b, nil
}

func (b *Bus) configure(ctx context.Context, cfg Config) error {
	rate := cfg.Rate
	if rate == 0 {
		rate = cfg.Mode.Rate()
	}

	if cfg.CSPin == NoPin {
		if err := b.mcu.Send(ctx, "config_spi_without_cs", vlq(uint32(cfg.OID))); err != nil {
			return err
		}
	} else {
		if cfg.CSPin < 0 {
			return errors.Errorf("invalid chip select pin %d", cfg.CSPin)
		}
		err := b.mcu.Send(ctx, "config_spi", vlq(uint32(cfg.OID), uint32(cfg.CSPin), boolArg(cfg.CSActiveHigh)))
		if err != nil {
			return err
		}
	}

	mode := uint32(cfg.Mode.Number())
	if cfg.Software {
		return b.mcu.Send(ctx, "spi_set_software_bus",
			vlq(uint32(cfg.OID), cfg.MISO, cfg.MOSI, cfg.SCLK, mode, rate))
	}
	return b.mcu.Send(ctx, "spi_set_bus", vlq(uint32(cfg.OID), cfg.BusID, mode, rate))
}

// SetTimeout bounds each command of a transfer.
func (b *Bus) SetTimeout(d time.Duration) {
	b.timeout = d
}

// OID returns the device's object ID on the board.
func (b *Bus) OID() uint8 {
	return b.oid
}

// Err returns the first link error since the current transaction started.
func (b *Bus) Err() error {
	return b.err
}

// OnStart clears the error state and asserts the board's chip select.
func (b *Bus) OnStart(*spi.Transaction) {
	b.err = nil
	b.send("spi_begin", vlq(uint32(b.oid)))
}

// OnEnd releases the board's chip select.
func (b *Bus) OnEnd(*spi.Transaction) {
	// Sent even after a failure so the board does not keep the device
	// selected.
	if err := b.command("spi_end", vlq(uint32(b.oid))); err != nil && b.err == nil {
		b.fail(err)
	}
}

func (b *Bus) writeRead(n int, out, in []byte) {
	for off := 0; off < n; off += ChunkSize {
		k := min(ChunkSize, n-off)
		b.chunk("spi_transfer", slice(out, off, k), slice(in, off, k), k)
	}
}

// writeReadReverse walks the chunks from the end so the last byte still
// goes out first.
func (b *Bus) writeReadReverse(n int, out, in []byte) {
	for end := n; end > 0; end -= ChunkSize {
		k := min(ChunkSize, end)
		off := end - k
		b.chunk("spi_transfer_reverse", slice(out, off, k), slice(in, off, k), k)
	}
}

func (b *Bus) chunk(cmd string, out, in []byte, k int) {
	if b.err != nil {
		clear(in)
		return
	}
	if out == nil {
		out = make([]byte, k)
	}

	if in == nil {
		if cmd == "spi_transfer_reverse" {
			reversed := make([]byte, k)
			for i := range reversed {
				reversed[i] = out[k-1-i]
			}
			out = reversed
		}
		b.send("spi_send", vlqBytes(b.oid, out))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	err := b.mcu.Query(ctx, cmd, vlqBytes(b.oid, out), "spi_transfer_response", func(data []byte) (bool, error) {
		oid, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			return false, err
		}
		if uint8(oid) != b.oid {
			return false, nil
		}
		resp, err := protocol.DecodeVLQBytes(&data)
		if err != nil {
			return false, err
		}
		if len(resp) != k {
			return false, errors.Errorf("response has %d bytes, want %d", len(resp), k)
		}
		copy(in, resp)
		return true, nil
	})
	if err != nil {
		clear(in)
		b.fail(err)
	}
}

func (b *Bus) send(cmd string, args func(output protocol.OutputBuffer)) {
	if b.err != nil {
		return
	}
	if err := b.command(cmd, args); err != nil {
		b.fail(err)
	}
}

func (b *Bus) command(cmd string, args func(output protocol.OutputBuffer)) error {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	return b.mcu.Send(ctx, cmd, args)
}

func (b *Bus) fail(err error) {
	b.logger.Warnw("remote transfer failed", "oid", b.oid, "error", err)
	b.err = err
}

func slice(buf []byte, off, k int) []byte {
	if buf == nil {
		return nil
	}
	return buf[off : off+k]
}

func vlq(args ...uint32) func(output protocol.OutputBuffer) {
	return func(output protocol.OutputBuffer) {
		for _, v := range args {
			protocol.EncodeVLQUint(output, v)
		}
	}
}

func vlqBytes(oid uint8, data []byte) func(output protocol.OutputBuffer) {
	return func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQBytes(output, data)
	}
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
