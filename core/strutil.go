package core

// Itoa converts an integer to a string without pulling in fmt.
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if negative {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Utoa converts an unsigned integer to a string
func Utoa(n uint32) string {
	if n == 0 {
		return "0"
	}

	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// valueToString converts a dictionary constant to its string form
func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return Itoa(val)
	case int32:
		return Itoa(int(val))
	case uint8:
		return Utoa(uint32(val))
	case uint16:
		return Utoa(uint32(val))
	case uint32:
		return Utoa(val)
	default:
		return ""
	}
}
