//go:build !tinygo

package protocol

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a command round trip when the caller has no
// deadline of its own.
const DefaultTimeout = 2 * time.Second

// ErrTransportClosed is returned by waits on a closed HostTransport.
var ErrTransportClosed = errors.New("transport closed")

// ResponseHandler observes every response block as it arrives.
type ResponseHandler func(cmdID uint16, data *[]byte)

// HostTransport is the host side of the link. It sends one command block at
// a time, waits for its ACK and queues the response blocks the MCU sends
// back.
type HostTransport struct {
	port   io.ReadWriteCloser
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	seq     uint8

	input     *FifoBuffer
	acks      chan uint8
	responses chan *Message

	handlerMu sync.Mutex
	handler   ResponseHandler

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewHostTransport starts reading from port. A nil logger discards logs.
func NewHostTransport(port io.ReadWriteCloser, logger *zap.SugaredLogger) *HostTransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	t := &HostTransport{
		port:      port,
		logger:    logger,
		seq:       MessageDest,
		input:     NewFifoBuffer(MessageMax),
		acks:      make(chan uint8, 4),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends cmdID with its arguments and waits for the MCU to
// acknowledge it.
func (t *HostTransport) SendCommand(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	if payload.Overflowed() || len(payload.Result()) > MessagePayloadMax {
		return errors.Wrapf(ErrPayloadTooLong, "command %d (%d bytes)", cmdID, len(payload.Result()))
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	block := NewScratchOutput()
	EncodeBlock(block, t.seq, func(output OutputBuffer) {
		output.Output(payload.Result())
	})
	if _, err := t.port.Write(block.Result()); err != nil {
		return errors.Wrapf(err, "writing command %d", cmdID)
	}
	return t.waitForAck(ctx, NextSequence(t.seq))
}

func (t *HostTransport) waitForAck(ctx context.Context, want uint8) error {
	for {
		select {
		case ack := <-t.acks:
			if ack == want {
				t.seq = want
				return nil
			}
			t.logger.Debugw("ignoring ack", "got", ack, "want", want)
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for ack %#x", want)
		case <-t.done:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next queued response block.
func (t *HostTransport) ReceiveResponse(ctx context.Context) (*Message, error) {
	select {
	case msg := <-t.responses:
		return msg, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for response")
	case <-t.done:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler registers a callback run for every response block.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.handler = handler
}

// Sequence returns the sequence byte of the next command.
func (t *HostTransport) Sequence() uint8 {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.seq
}

// Reset drops queued input and restarts the sequence.
func (t *HostTransport) Reset() {
	t.writeMu.Lock()
	t.seq = MessageDest
	t.writeMu.Unlock()
	for {
		select {
		case <-t.acks:
		case <-t.responses:
		default:
			return
		}
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = errors.Wrap(t.port.Close(), "closing port")
		<-t.done
	})
	return err
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processInput()
		}
		if err == nil {
			continue
		}
		select {
		case <-t.stop:
			return
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			t.logger.Debugw("link closed", "error", err)
			return
		}
		t.logger.Warnw("read failed", "error", err)
		time.Sleep(10 * time.Millisecond)
	}
}

func (t *HostTransport) processInput() {
	data := t.input.Data()
	for len(data) > 0 {
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		msg, n, err := ParseBlock(data)
		if errors.Is(err, ErrNeedMore) {
			break
		}
		if err != nil {
			t.logger.Debugw("dropping corrupt input", "bytes", len(data))
			data = Resync(data)
			continue
		}
		msg.Payload = append([]byte(nil), msg.Payload...)
		data = data[n:]
		t.dispatch(&msg)
	}
	t.input.Pop(t.input.Available() - len(data))
}

func (t *HostTransport) dispatch(msg *Message) {
	if msg.IsAck() {
		select {
		case t.acks <- msg.Sequence:
		default:
			t.logger.Warnw("ack queue full", "seq", msg.Sequence)
		}
		return
	}

	t.handlerMu.Lock()
	handler := t.handler
	t.handlerMu.Unlock()
	if handler != nil {
		data := msg.Payload
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			handler(uint16(cmdID), &data)
		}
	}

	select {
	case t.responses <- msg:
	default:
		// Drop the oldest response to make room.
		select {
		case <-t.responses:
		default:
		}
		t.responses <- msg
	}
}
