package wire

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// NameSize is the on-wire width of every string field.
const NameSize = 32

// Encoder appends fixed-width fields to a byte buffer.
type Encoder struct {
	buf []byte
}

func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteUint8(b byte) {
	e.buf = append(e.buf, b)
}

func (e *Encoder) WriteInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *Encoder) WriteFloat32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

// WriteFixedString writes s into exactly NameSize bytes.
func (e *Encoder) WriteFixedString(s string) {
	s = truncateUTF8(s, NameSize)
	var field [NameSize]byte
	copy(field[:], s)
	e.buf = append(e.buf, field[:]...)
}

// Decoder reads fixed-width fields from a byte slice.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Position returns the current read offset.
func (d *Decoder) Position() int {
	return d.pos
}

func (d *Decoder) ReadUint8() (uint8, error) {
	if d.pos >= len(d.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	if d.Remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return int32(v), nil
}

func (d *Decoder) ReadFloat32() (float32, error) {
	if d.Remaining() < 4 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return math.Float32frombits(v), nil
}

// ReadFixedString reads a NameSize field and cuts it at the first NUL.
func (d *Decoder) ReadFixedString() (string, error) {
	if d.Remaining() < NameSize {
		return "", io.ErrUnexpectedEOF
	}
	field := d.buf[d.pos : d.pos+NameSize]
	d.pos += NameSize
	for i, b := range field {
		if b == 0 {
			field = field[:i]
			break
		}
	}
	return string(field), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// FixedString returns s as it reads back after a round trip through a
// NameSize field.
func FixedString(s string) string {
	s = truncateUTF8(s, NameSize)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i]
		}
	}
	return s
}
