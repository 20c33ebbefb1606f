package core

import "spibus/protocol"

// ResponseSender queues a response block for the host. *protocol.Transport
// implements it.
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

var responseSender ResponseSender

// SetResponseSender selects where responses go. A nil sender drops them.
func SetResponseSender(s ResponseSender) {
	responseSender = s
}

// SendResponse sends a registered response. Sending an unregistered response
// is a programming error and panics.
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	if responseSender == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		panic("response not registered: " + name)
	}
	responseSender.SendCommand(cmd.ID, args)
}
