// Package mcu talks to firmware over the framed serial protocol: it fetches
// the identify dictionary and sends commands by name.
package mcu

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"spibus/host/serial"
	"spibus/protocol"
)

// IDs fixed before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

// identifyChunk is the dictionary slice requested per identify command.
const identifyChunk = 40

// ErrNoDictionary is returned when a command is sent before Identify.
var ErrNoDictionary = errors.New("dictionary not loaded")

// MCU is a connection to one board.
type MCU struct {
	transport *protocol.HostTransport
	logger    *zap.SugaredLogger
	timeout   time.Duration

	// queryMu keeps one query waiting for responses at a time.
	queryMu sync.Mutex
	dict    *Dictionary
	rawDict []byte
}

// New wraps an open link. A nil logger discards logs.
func New(port io.ReadWriteCloser, logger *zap.SugaredLogger) *MCU {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MCU{
		transport: protocol.NewHostTransport(port, logger.Named("transport")),
		logger:    logger,
		timeout:   protocol.DefaultTimeout,
	}
}

// Connect opens a serial device and loads the dictionary.
func Connect(ctx context.Context, cfg *serial.Config, logger *zap.SugaredLogger) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		logger.Debugw("flush failed", "error", err)
	}
	m := New(port, logger)
	if err := m.Identify(ctx); err != nil {
		return nil, multierr.Combine(err, m.Close())
	}
	return m, nil
}

// SetTimeout bounds each command round trip made without a caller deadline.
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Close closes the link.
func (m *MCU) Close() error {
	return m.transport.Close()
}

// Identify downloads and parses the dictionary.
func (m *MCU) Identify(ctx context.Context) error {
	var raw bytes.Buffer
	for {
		chunk, err := m.identifyChunk(ctx, uint32(raw.Len()))
		if err != nil {
			return errors.Wrapf(err, "identify at offset %d", raw.Len())
		}
		raw.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	m.logger.Debugw("dictionary retrieved", "bytes", raw.Len())

	dict, err := ParseDictionary(raw.Bytes())
	if err != nil {
		return err
	}
	m.queryMu.Lock()
	m.dict = dict
	m.rawDict = raw.Bytes()
	m.queryMu.Unlock()
	m.logger.Infow("identified MCU", "version", dict.Version, "commands", len(dict.Commands))
	return nil
}

func (m *MCU) identifyChunk(ctx context.Context, offset uint32) ([]byte, error) {
	m.queryMu.Lock()
	defer m.queryMu.Unlock()

	args := func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, identifyChunk)
	}
	var chunk []byte
	err := m.query(ctx, identifyID, args, identifyResponseID, func(data []byte) (bool, error) {
		got, err := protocol.DecodeVLQUint(&data)
		if err != nil || got != offset {
			return false, err
		}
		chunk, err = protocol.DecodeVLQBytes(&data)
		return true, err
	})
	return chunk, err
}

// Dictionary returns the parsed dictionary, or nil before Identify.
func (m *MCU) Dictionary() *Dictionary {
	m.queryMu.Lock()
	defer m.queryMu.Unlock()
	return m.dict
}

// RawDictionary returns the identify data as received.
func (m *MCU) RawDictionary() []byte {
	m.queryMu.Lock()
	defer m.queryMu.Unlock()
	return m.rawDict
}

// Send sends a command by name and waits for its ACK.
func (m *MCU) Send(ctx context.Context, name string, args func(output protocol.OutputBuffer)) error {
	dict := m.Dictionary()
	if dict == nil {
		return ErrNoDictionary
	}
	id, err := dict.CommandID(name)
	if err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return errors.Wrap(m.transport.SendCommand(ctx, id, args), name)
}

// Query sends a command and waits for a response named response that match
// accepts. match sees the response arguments; returning false skips a
// stale response. Other responses are dropped.
func (m *MCU) Query(
	ctx context.Context,
	name string,
	args func(output protocol.OutputBuffer),
	response string,
	match func(data []byte) (bool, error),
) error {
	dict := m.Dictionary()
	if dict == nil {
		return ErrNoDictionary
	}
	cmdID, err := dict.CommandID(name)
	if err != nil {
		return err
	}
	respID, err := dict.ResponseID(response)
	if err != nil {
		return err
	}

	m.queryMu.Lock()
	defer m.queryMu.Unlock()
	return errors.Wrap(m.query(ctx, cmdID, args, respID, match), name)
}

func (m *MCU) query(
	ctx context.Context,
	cmdID uint16,
	args func(output protocol.OutputBuffer),
	respID uint16,
	match func(data []byte) (bool, error),
) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if err := m.transport.SendCommand(ctx, cmdID, args); err != nil {
		return err
	}
	for {
		msg, err := m.transport.ReceiveResponse(ctx)
		if err != nil {
			return err
		}
		id, data, err := DecodeResponse(msg.Payload)
		if err != nil {
			return err
		}
		if id != respID {
			m.logger.Debugw("skipping response", "id", id, "format", m.format(id))
			continue
		}
		ok, err := match(data)
		if err != nil {
			return errors.Wrapf(err, "decoding response %d", id)
		}
		if ok {
			return nil
		}
		m.logger.Debugw("skipping stale response", "id", id)
	}
}

// ConfigState is the answer to get_config.
type ConfigState struct {
	IsConfig   bool
	CRC        uint32
	IsShutdown bool
	MoveCount  uint32
}

// GetConfig queries the configuration state.
func (m *MCU) GetConfig(ctx context.Context) (ConfigState, error) {
	var state ConfigState
	err := m.Query(ctx, "get_config", nil, "config", func(data []byte) (bool, error) {
		var vals [4]uint32
		for i := range vals {
			v, err := protocol.DecodeVLQUint(&data)
			if err != nil {
				return false, err
			}
			vals[i] = v
		}
		state = ConfigState{
			IsConfig:   vals[0] != 0,
			CRC:        vals[1],
			IsShutdown: vals[2] != 0,
			MoveCount:  vals[3],
		}
		return true, nil
	})
	return state, err
}

// SetResponseHandler registers a callback for every response, matched or
// not.
func (m *MCU) SetResponseHandler(handler protocol.ResponseHandler) {
	m.transport.SetResponseHandler(handler)
}

func (m *MCU) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *MCU) format(id uint16) string {
	if m.dict == nil {
		return ""
	}
	return m.dict.Format(id)
}

// DecodeResponse splits a response payload into its ID and arguments.
func DecodeResponse(payload []byte) (uint16, []byte, error) {
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, nil, errors.Wrap(err, "decoding response id")
	}
	return uint16(id), payload, nil
}
