package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// EncodeVLQInt encodes a signed integer, most significant group first.
// Values in [-32, 96) take one byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	if v < -(1<<26) || v >= 3<<26 {
		buf[n] = byte((v>>28)&0x7F) | 0x80
		n++
	}
	if v < -(1<<19) || v >= 3<<19 {
		buf[n] = byte((v>>21)&0x7F) | 0x80
		n++
	}
	if v < -(1<<12) || v >= 3<<12 {
		buf[n] = byte((v>>14)&0x7F) | 0x80
		n++
	}
	if v < -(1<<5) || v >= 3<<5 {
		buf[n] = byte((v>>7)&0x7F) | 0x80
		n++
	}
	buf[n] = byte(v & 0x7F)
	output.Output(buf[:n+1])
}

// EncodeVLQUint encodes an unsigned integer
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes a signed integer and advances data past it
func DecodeVLQInt(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}

	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrBufferTooSmall
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = (v << 7) | (c & 0x7F)
	}

	return int32(v), nil
}

// DecodeVLQUint decodes an unsigned integer and advances data past it
func DecodeVLQUint(data *[]byte) (uint32, error) {
	val, err := DecodeVLQInt(data)
	return uint32(val), err
}

// EncodeVLQBytes encodes a length-prefixed byte string
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes decodes a length-prefixed byte string. The result aliases
// data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if length > uint32(len(*data)) {
		return nil, ErrInvalidVLQ
	}
	result := (*data)[:length]
	*data = (*data)[length:]
	return result, nil
}

// EncodeVLQString encodes a length-prefixed string
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString decodes a length-prefixed string
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
