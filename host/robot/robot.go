// Package robot is the host-side client for the ada firmware. It fetches
// the firmware's data dictionary, then resolves every command by name.
package robot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"ada/host/serial"
	"ada/protocol"
)

var (
	// ErrNoDictionary is returned by queries made before RetrieveDictionary
	ErrNoDictionary = errors.New("robot: dictionary not loaded")

	// ErrInvalidArgument means the firmware rejected a query argument
	ErrInvalidArgument = errors.New("robot: invalid argument")

	// ErrBusError means the sensor did not answer on its bus
	ErrBusError = errors.New("robot: sensor bus error")

	// ErrNotConfigured means the firmware has no such sensor, or is shut down
	ErrNotConfigured = errors.New("robot: sensor not configured")
)

// Identify command IDs are fixed so the dictionary can be fetched
// before anything else is known.
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunk      = 40
)

// DefaultTimeout bounds one command/response exchange
const DefaultTimeout = time.Second

// Options tune a Robot
type Options struct {
	// Timeout bounds each command/response exchange; zero selects
	// DefaultTimeout.
	Timeout time.Duration

	// Log receives progress messages; nil discards them.
	Log io.Writer
}

// Robot is a connection to one ada firmware. Queries are serialized: each
// sends one command and waits for its response.
type Robot struct {
	mu             sync.Mutex
	transport      *protocol.HostTransport
	dictionary     *Dictionary
	dictionaryData []byte
	timeout        time.Duration
	log            io.Writer
}

// Connect opens the serial port described by cfg and fetches the dictionary
func Connect(cfg *serial.Config, opts Options) (*Robot, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// Drop anything the firmware sent before we were listening
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush serial port: %w", err)
	}

	r := New(port, opts)

	// Give the firmware time to come up if opening the port reset it
	time.Sleep(100 * time.Millisecond)

	if err := r.RetrieveDictionary(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// New starts a Robot on an already-open port. Call RetrieveDictionary
// before any query.
func New(port io.ReadWriteCloser, opts Options) *Robot {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := opts.Log
	if log == nil {
		log = io.Discard
	}
	return &Robot{
		transport: protocol.NewHostTransport(port),
		timeout:   timeout,
		log:       log,
	}
}

// Close shuts the connection down
func (r *Robot) Close() error {
	return r.transport.Close()
}

// RetrieveDictionary fetches the data dictionary in identify chunks
func (r *Robot) RetrieveDictionary() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.log, "Retrieving dictionary...")

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	const maxChunks = 1000

	for i := 0; i < maxChunks; i++ {
		chunk, err := r.sendIdentify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		if i%10 == 0 {
			fmt.Fprintf(r.log, "  Retrieved %d bytes...\n", offset)
		}
		if len(chunk) < identifyChunk {
			break
		}
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(dictBuffer.Bytes(), dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	dict.index()

	r.dictionaryData = dictBuffer.Bytes()
	r.dictionary = dict
	fmt.Fprintf(r.log, "Dictionary retrieved: %d bytes, firmware %s\n", offset, dict.Version)
	return nil
}

// sendIdentify requests one dictionary chunk. Caller must hold r.mu.
func (r *Robot) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	err := r.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, r.timeout)
	if err != nil {
		return nil, err
	}

	payload, err := r.awaitResponse(identifyResponseID)
	if err != nil {
		return nil, err
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return append([]byte(nil), data...), nil
}

// awaitResponse returns the payload, after the ID, of the next response
// with id. Unrelated responses are skipped. Caller must hold r.mu.
func (r *Robot) awaitResponse(id uint16) ([]byte, error) {
	deadline := time.Now().Add(r.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("response %d timed out after %v", id, r.timeout)
		}
		msg, err := r.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, err
		}

		payload := msg.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil || uint16(got) != id {
			continue
		}
		return payload, nil
	}
}

// Dictionary returns the parsed dictionary, or nil before
// RetrieveDictionary.
func (r *Robot) Dictionary() *Dictionary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dictionary
}

// DictionaryRaw returns the dictionary JSON as received
func (r *Robot) DictionaryRaw() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dictionaryData
}

// send issues a command that has no response
func (r *Robot) send(command string, args func(output protocol.OutputBuffer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dictionary == nil {
		return ErrNoDictionary
	}
	cmd, err := r.dictionary.lookup(command)
	if err != nil {
		return err
	}
	if err := r.transport.SendCommandWithTimeout(cmd.id, args, r.timeout); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// query issues command and decodes the response named response, which
// must carry at least nfields integer fields.
func (r *Robot) query(command, response string, nfields int, args func(output protocol.OutputBuffer)) ([]uint32, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dictionary == nil {
		return nil, nil, ErrNoDictionary
	}
	cmd, err := r.dictionary.lookup(command)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.dictionary.lookup(response)
	if err != nil {
		return nil, nil, err
	}

	if err := r.transport.SendCommandWithTimeout(cmd.id, args, r.timeout); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", command, err)
	}
	payload, err := r.awaitResponse(resp.id)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", command, err)
	}

	ints, raw, err := decodeFields(resp.format, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", response, err)
	}
	if len(ints) < nfields {
		return nil, nil, fmt.Errorf("%s: %d fields, want %d", response, len(ints), nfields)
	}
	return ints, raw, nil
}
