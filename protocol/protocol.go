// Package protocol implements the framed serial link between the ada
// firmware and the host.
//
// Every frame is: length byte, sequence byte, VLQ-encoded payload, CRC16
// (big endian) and a trailing sync byte. The host numbers its frames in
// 0x10-0x1F; the firmware acknowledges each one with an empty frame carrying
// the next expected sequence.
package protocol

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// OutputMax is the capacity of a ScratchOutput; large enough for several
// queued frames.
const OutputMax = 512

// nextSeq advances a host sequence number within 0x10-0x1F.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
