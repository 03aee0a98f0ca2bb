package protocol

import "sync/atomic"

// CommandHandler handles one decoded command. data holds the remaining
// frame payload; the handler consumes its own arguments.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware end of the link: it parses host frames,
// dispatches their commands, acknowledges them and frames responses.
type Transport struct {
	scanner       frameScanner
	nextSequence  uint32 // atomic; expected host sequence, 0x10-0x1F
	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
}

// NewTransport creates a Transport writing frames to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		scanner:      frameScanner{synced: true},
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes every complete frame in input
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), func(seq uint8, payload []byte) {
		if seq&^MessageSeqMask != MessageDest {
			return
		}

		expected := uint8(atomic.LoadUint32(&t.nextSequence))
		if seq == MessageDest && expected != MessageDest {
			// The host restarted its numbering.
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if seq == expected {
			atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(seq)))
			_ = t.parseFrame(payload)
		}
		// A mismatched sequence still gets an ACK; it tells the host which
		// sequence we expect.
		t.encodeAck()
	})

	if consumed > 0 {
		input.Pop(consumed)
	}
}

// parseFrame dispatches each command in a frame payload
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.synced = false
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.synced = false
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// encodeAck writes an empty frame carrying the next expected sequence
func (t *Transport) encodeAck() {
	ns := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output(appendTrailer([]byte{MessageLengthMin, ns}))

	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by frameData
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	t.output.Output([]byte{0, seq})
	frameData(t.output)

	body := t.output.DataSince(cursor)
	t.output.Update(cursor, uint8(len(body)+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand frames a command (or response) with its arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.scanner.synced = true
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback run when the host restarts numbering
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback run right after each ACK is queued
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
