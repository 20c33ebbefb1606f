// Package protocol implements the framed command protocol spoken between the
// host and an SPI bridge MCU. Commands are VLQ encoded and carried in
// sequenced blocks:
//
//	<len> <seq> <payload...> <crc hi> <crc lo> 0x7E
//
// The length counts the whole block. The sequence byte always carries 0x10 in
// its upper bits; the lower nibble counts blocks from the host.
package protocol

import "errors"

// Version is the protocol implementation version reported in the dictionary.
const Version = "0.1.0"

const (
	MessageMax         = 512 // output scratch size, room for several blocks
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

var (
	// ErrNeedMore means the data holds the start of a block but not all of it.
	ErrNeedMore = errors.New("incomplete block")
	// ErrBadBlock means the data does not start with a valid block.
	ErrBadBlock = errors.New("malformed block")
	// ErrPayloadTooLong is returned when a payload does not fit in one block.
	ErrPayloadTooLong = errors.New("payload exceeds block size")
)

// Message is one decoded block.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// IsAck reports whether the block is an ACK/NAK, which carries no payload.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// NextSequence returns the sequence byte that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// ParseBlock decodes the block at the start of data and returns it with the
// number of bytes it used. The payload aliases data.
func ParseBlock(data []byte) (Message, int, error) {
	if len(data) < MessageLengthMin {
		return Message{}, 0, ErrNeedMore
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return Message{}, 0, ErrBadBlock
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Message{}, 0, ErrBadBlock
	}
	if len(data) < msgLen {
		return Message{}, 0, ErrNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return Message{}, 0, ErrBadBlock
	}
	crc := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if crc != CRC16(data[:msgLen-MessageTrailerSize]) {
		return Message{}, 0, ErrBadBlock
	}
	return Message{
		Length:   uint8(msgLen),
		Sequence: seq,
		Payload:  data[MessageHeaderSize : msgLen-MessageTrailerSize],
		CRC:      crc,
	}, msgLen, nil
}

// EncodeBlock appends a complete block around payload to output.
func EncodeBlock(output OutputBuffer, seq uint8, payload func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if payload != nil {
		payload(output)
	}
	output.Update(cursor, uint8(len(output.DataSince(cursor))+MessageTrailerSize))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// Resync skips to just past the next sync byte. It returns nil when there is
// none.
func Resync(data []byte) []byte {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:]
		}
	}
	return nil
}
