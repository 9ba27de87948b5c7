package wire

// SplitMessages is a bufio.SplitFunc that cuts a byte stream into whole
// messages using the fixed payload size of each tag.
//
// An unknown tag is returned as a one-byte token so the reader can report it
// and resynchronise on the next byte. A partial message at EOF is returned as
// is; decoding it yields ErrTruncatedMessage.
func SplitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	n, ok := PayloadSize(Tag(data[0]))
	if !ok {
		return 1, data[:1], nil
	}
	if len(data) < 1+n {
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
	return 1 + n, data[:1+n], nil
}
