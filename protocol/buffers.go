package protocol

// InputBuffer is the receive side seen by Transport.Receive
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer collects encoded frames before they reach the wire
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer adapts a byte slice to InputBuffer
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data without copying it
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte { return s.data }

func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-size OutputBuffer; writes past the end are
// truncated.
type ScratchOutput struct {
	buf [OutputMax]byte
	pos int
}

// NewScratchOutput returns an empty ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset discards the buffered output
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a ring buffer between a byte source (UART, serial port)
// and the frame parser. One slot stays free to tell full from empty.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		written++
	}
	return written
}

// PushByte appends a single byte, reporting false when full
func (f *FifoBuffer) PushByte(b byte) bool {
	return f.Write([]byte{b}) == 1
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Free returns the remaining capacity
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes as one contiguous slice. When the ring
// has wrapped the bytes are copied.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	result := make([]byte, 0, f.Available())
	result = append(result, f.buf[f.read:]...)
	return append(result, f.buf[:f.write]...)
}

// Pop drops n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if n > f.Available() {
		n = f.Available()
	}
	f.read = (f.read + n) % len(f.buf)
}

// IsEmpty reports whether nothing is buffered
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
