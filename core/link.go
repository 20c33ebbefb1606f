package core

import (
	"io"

	"spibus/protocol"
)

// Link connects the command layer to a byte stream: a UART, USB CDC or, in
// tests, a pipe. It owns the device Transport and registers it as the
// response sender.
type Link struct {
	rw        io.ReadWriter
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport
	writeErr  error
}

// NewLink returns a Link dispatching to the global registry.
func NewLink(rw io.ReadWriter) *Link {
	l := &Link{
		rw:     rw,
		input:  protocol.NewFifoBuffer(protocol.MessageMax),
		output: protocol.NewScratchOutput(),
	}
	l.transport = protocol.NewTransport(l.output, DispatchCommand)
	l.transport.SetFlushCallback(l.flush)
	l.transport.SetResetCallback(ResetFirmwareState)
	l.transport.SetErrorCallback(func(err error) {
		DebugPrintln("command failed: " + err.Error())
	})
	SetResponseSender(l.transport)
	return l
}

// Transport returns the device transport.
func (l *Link) Transport() *protocol.Transport {
	return l.transport
}

// Reset drops buffered data and restarts the transport, as after a host
// reconnect.
func (l *Link) Reset() {
	l.input.Reset()
	l.output.Reset()
	l.writeErr = nil
	l.transport.Reset()
}

// Feed processes received bytes and writes the replies.
func (l *Link) Feed(data []byte) error {
	for len(data) > 0 {
		n := l.input.Write(data)
		data = data[n:]
		l.transport.Receive(l.input)
	}
	l.flush()
	err := l.writeErr
	l.writeErr = nil
	return err
}

// Run reads from the stream until it fails. io.EOF ends it without error.
func (l *Link) Run() error {
	buf := make([]byte, 64)
	for {
		n, err := l.rw.Read(buf)
		if n > 0 {
			if werr := l.Feed(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (l *Link) flush() {
	if l.output.CurPosition() == 0 {
		return
	}
	if l.output.Overflowed() {
		DebugPrintln("response buffer overflow")
	}
	if _, err := l.rw.Write(l.output.Result()); err != nil && l.writeErr == nil {
		l.writeErr = err
	}
	l.output.Reset()
}
