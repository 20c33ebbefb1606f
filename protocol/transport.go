package protocol

import "sync/atomic"

// CommandHandler decodes and runs one command. It must consume its
// arguments from the front of *data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link. It validates incoming blocks,
// answers each one with an ACK (or a NAK carrying the expected sequence) and
// dispatches the commands inside. Responses are written to the same output
// after the ACK.
type Transport struct {
	synchronized atomic.Bool
	nextSequence atomic.Uint32

	output  OutputBuffer
	handler CommandHandler

	resetCallback func()
	flushCallback func()
	errorCallback func(error)
}

// NewTransport returns a synchronized Transport writing to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes every complete block in input. A partial block is left
// in place for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	for len(data) > 0 {
		if !t.synchronized.Load() {
			data = Resync(data)
			if data != nil {
				t.synchronized.Store(true)
				t.encodeAckNak()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msg, n, err := ParseBlock(data)
		if err == ErrNeedMore {
			break
		}
		if err != nil {
			t.synchronized.Store(false)
			continue
		}
		data = data[n:]
		t.receiveBlock(msg)
	}
	input.Pop(input.Available() - len(data))
}

func (t *Transport) receiveBlock(msg Message) {
	expected := uint8(t.nextSequence.Load())
	if msg.Sequence == MessageDest && expected != MessageDest {
		// The host restarted its sequence.
		expected = MessageDest
		t.nextSequence.Store(MessageDest)
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if msg.Sequence != expected {
		t.encodeAckNak()
		return
	}
	t.nextSequence.Store(uint32(NextSequence(msg.Sequence)))
	t.encodeAckNak()
	t.parseFrame(msg.Payload)
}

func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.synchronized.Store(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.synchronized.Store(false)
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.errorCallback != nil {
				t.errorCallback(err)
			}
			return
		}
	}
}

func (t *Transport) encodeAckNak() {
	EncodeBlock(t.output, uint8(t.nextSequence.Load()), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand writes a response block carrying cmdID and its arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	EncodeBlock(t.output, uint8(t.nextSequence.Load()), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.synchronized.Store(true)
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a function run when the host restarts.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a function run after every ACK so it can be
// pushed out ahead of the responses.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback registers a function receiving command handler errors.
// The rest of a failing block is skipped.
func (t *Transport) SetErrorCallback(callback func(error)) {
	t.errorCallback = callback
}
