package protocol

// frameScanner finds complete, CRC-valid frames in a byte stream. After a
// framing error it drops bytes up to the next sync byte.
type frameScanner struct {
	synced bool
}

// scan calls emit for every valid frame in data and returns the number of
// bytes consumed. A trailing partial frame is left unconsumed.
func (s *frameScanner) scan(data []byte, emit func(seq uint8, payload []byte)) int {
	start := len(data)

	for len(data) > 0 {
		if !s.synced {
			i := indexSync(data)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.synced = true
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			s.synced = false
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			s.synced = false
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			s.synced = false
			continue
		}

		emit(data[MessagePositionSeq], data[MessageHeaderSize:msgLen-MessageTrailerSize])
		data = data[msgLen:]
	}

	return start - len(data)
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}
