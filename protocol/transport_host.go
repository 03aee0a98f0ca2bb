package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransportClosed is returned by calls made after Close
var ErrTransportClosed = errors.New("transport closed")

// DefaultAckTimeout bounds how long SendCommand waits for an ACK
const DefaultAckTimeout = 2 * time.Second

// Message is a parsed frame received from the firmware
type Message struct {
	Sequence uint8
	Payload  []byte
}

// HostTransport is the host end of the link. A background goroutine reads
// the port; ACKs and responses are handed over through channels.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic; sequence of the next frame we send

	writeMutex sync.Mutex
	readMutex  sync.Mutex
	scanner    frameScanner
	input      *FifoBuffer

	ackChan      chan *Message
	responseChan chan *Message

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts a transport reading from port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		scanner:      frameScanner{synced: true},
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	go t.readLoop()

	return t
}

// SendCommand sends a command and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command and waits up to timeout for its ACK
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	msg, err := buildCommandMessage(seq, cmdID, args)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}

	n, err := t.port.Write(msg)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}

	if err := t.waitForAck(seq, timeout); err != nil {
		return fmt.Errorf("waiting for ACK: %w", err)
	}
	return nil
}

// buildCommandMessage frames cmdID and its arguments with sequence seq
func buildCommandMessage(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()

	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", msgLen, MessageLengthMax)
	}

	msg := make([]byte, 0, msgLen)
	msg = append(msg, uint8(msgLen), seq)
	msg = append(msg, payload...)
	return appendTrailer(msg), nil
}

// waitForAck waits for the ACK of the frame sent with seq. The firmware
// acknowledges with the sequence it expects next.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	want := nextSeq(seq)
	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				// A stale ACK or a NAK for a frame the firmware skipped;
				// resync our numbering to what it expects.
				atomic.StoreUint32(&t.currentSeq, uint32(ack.Sequence))
				return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", want, ack.Sequence)
			}
			atomic.StoreUint32(&t.currentSeq, uint32(want))
			return nil

		case <-timer.C:
			return fmt.Errorf("ACK timeout after %v", timeout)

		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse waits up to timeout for the next response frame
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.processInput(buffer[:n])
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			// Serial read timeouts surface as errors; back off briefly.
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processInput buffers raw bytes and dispatches every complete frame
func (t *HostTransport) processInput(data []byte) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	t.input.Write(data)
	consumed := t.scanner.scan(t.input.Data(), func(seq uint8, payload []byte) {
		msg := &Message{Sequence: seq, Payload: append([]byte(nil), payload...)}
		t.dispatchMessage(msg)
	})
	t.input.Pop(consumed)
}

// dispatchMessage routes ACKs and responses to their channels
func (t *HostTransport) dispatchMessage(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
			// Keep only the newest ACK.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	select {
	case t.responseChan <- msg:
	default:
		// Drop the oldest response to make room.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		// Closing the port unblocks a pending Read.
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restarts sequence numbering and drops anything queued
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.currentSeq, MessageDest)

	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}

	t.readMutex.Lock()
	t.input.Reset()
	t.scanner.synced = true
	t.readMutex.Unlock()
}

// GetCurrentSequence returns the sequence of the next outgoing frame
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
