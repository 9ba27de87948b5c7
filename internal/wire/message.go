package wire

import (
	"errors"
	"fmt"
)

// Tag is the single-byte discriminant that starts every message.
type Tag byte

const (
	TagHandshake        Tag = 'H'
	TagSelect           Tag = 'S'
	TagSpawnPosition    Tag = 'P'
	TagSelectError      Tag = 'E'
	TagPositionAccepted Tag = 'B'
	TagLifeUpdate       Tag = 'V'
	TagHackerFlag       Tag = 'M'
)

func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "Handshake"
	case TagSelect:
		return "Select"
	case TagSpawnPosition:
		return "SpawnPosition"
	case TagSelectError:
		return "SelectError"
	case TagPositionAccepted:
		return "PositionAccepted"
	case TagLifeUpdate:
		return "LifeUpdate"
	case TagHackerFlag:
		return "HackerFlag"
	default:
		return fmt.Sprintf("Tag(0x%02x)", byte(t))
	}
}

// Direction says which endpoint a message travels to.
type Direction uint8

const (
	ToServer Direction = iota + 1
	ToClient
)

func (d Direction) String() string {
	switch d {
	case ToServer:
		return "to-server"
	case ToClient:
		return "to-client"
	default:
		return "unknown"
	}
}

var (
	ErrTruncatedMessage = errors.New("wire: truncated message")
	ErrUnknownTag       = errors.New("wire: unknown tag")
	ErrEmptyFrame       = errors.New("wire: empty frame")
)

// DecodeError reports a message that could not be decoded.
type DecodeError struct {
	Tag Tag
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Vec3 is a position in world units.
type Vec3 struct {
	X, Y, Z float32
}

// Message is one of the variants defined in this package.
type Message interface {
	Tag() Tag
	encodePayload(e *Encoder)
}

type Handshake struct {
	ServerName         string
	ClientName         string
	PreviousClientName string
	ServerTime         float32 // seconds since the server started
}

// SelectCharacter is the client's request for a character slot.
type SelectCharacter struct {
	CharacterIndex uint8
}

// SelectAck confirms a slot to the client. It shares the 'S' tag with
// SelectCharacter.
type SelectAck struct {
	CharacterIndex uint8
}

// SpawnPosition is the server's spawn point for a character, and the
// client's report of where its character is.
type SpawnPosition struct {
	CharacterIndex uint8
	Position       Vec3
}

type SelectError struct {
	Message string
}

type PositionAccepted struct {
	CharacterIndex uint8
}

type LifeUpdate struct {
	CharacterIndex uint8
	Lives          int32
}

type HackerFlag struct {
	CharacterIndex uint8
}

func (Handshake) Tag() Tag        { return TagHandshake }
func (SelectCharacter) Tag() Tag  { return TagSelect }
func (SelectAck) Tag() Tag        { return TagSelect }
func (SpawnPosition) Tag() Tag    { return TagSpawnPosition }
func (SelectError) Tag() Tag      { return TagSelectError }
func (PositionAccepted) Tag() Tag { return TagPositionAccepted }
func (LifeUpdate) Tag() Tag       { return TagLifeUpdate }
func (HackerFlag) Tag() Tag       { return TagHackerFlag }

func (m Handshake) encodePayload(e *Encoder) {
	e.WriteFixedString(m.ServerName)
	e.WriteFixedString(m.ClientName)
	e.WriteFixedString(m.PreviousClientName)
	e.WriteFloat32(m.ServerTime)
}

func (m SelectCharacter) encodePayload(e *Encoder) { e.WriteUint8(m.CharacterIndex) }
func (m SelectAck) encodePayload(e *Encoder)       { e.WriteUint8(m.CharacterIndex) }

func (m SpawnPosition) encodePayload(e *Encoder) {
	e.WriteUint8(m.CharacterIndex)
	e.WriteFloat32(m.Position.X)
	e.WriteFloat32(m.Position.Y)
	e.WriteFloat32(m.Position.Z)
}

func (m SelectError) encodePayload(e *Encoder)      { e.WriteFixedString(m.Message) }
func (m PositionAccepted) encodePayload(e *Encoder) { e.WriteUint8(m.CharacterIndex) }

func (m LifeUpdate) encodePayload(e *Encoder) {
	e.WriteUint8(m.CharacterIndex)
	e.WriteInt32(m.Lives)
}

func (m HackerFlag) encodePayload(e *Encoder) { e.WriteUint8(m.CharacterIndex) }

// PayloadSize returns the fixed number of bytes that follow tag.
func PayloadSize(tag Tag) (int, bool) {
	switch tag {
	case TagHandshake:
		return 3*NameSize + 4, true
	case TagSelect, TagPositionAccepted, TagHackerFlag:
		return 1, true
	case TagSpawnPosition:
		return 1 + 3*4, true
	case TagSelectError:
		return NameSize, true
	case TagLifeUpdate:
		return 1 + 4, true
	default:
		return 0, false
	}
}

// Encode returns the tag byte followed by the message payload.
func Encode(m Message) []byte {
	n, _ := PayloadSize(m.Tag())
	e := NewEncoder(1 + n)
	e.WriteUint8(byte(m.Tag()))
	m.encodePayload(e)
	return e.Bytes()
}

// Accepts reports whether tag is valid for messages travelling in dir.
func Accepts(dir Direction, tag Tag) bool {
	switch tag {
	case TagSelect, TagSpawnPosition:
		return dir == ToServer || dir == ToClient
	case TagLifeUpdate:
		return dir == ToServer
	case TagHandshake, TagSelectError, TagPositionAccepted, TagHackerFlag:
		return dir == ToClient
	default:
		return false
	}
}

// Decode reads the payload for a tag that has already been consumed from d.
// It reads exactly PayloadSize(tag) bytes on success and nothing on failure.
func Decode(dir Direction, tag Tag, d *Decoder) (Message, error) {
	n, ok := PayloadSize(tag)
	if !ok || !Accepts(dir, tag) {
		return nil, &DecodeError{Tag: tag, Err: ErrUnknownTag}
	}
	if d.Remaining() < n {
		return nil, &DecodeError{Tag: tag, Err: ErrTruncatedMessage}
	}

	// Length is checked above, so the field reads below cannot fail.
	switch tag {
	case TagHandshake:
		var m Handshake
		m.ServerName, _ = d.ReadFixedString()
		m.ClientName, _ = d.ReadFixedString()
		m.PreviousClientName, _ = d.ReadFixedString()
		m.ServerTime, _ = d.ReadFloat32()
		return m, nil
	case TagSelect:
		idx, _ := d.ReadUint8()
		if dir == ToClient {
			return SelectAck{CharacterIndex: idx}, nil
		}
		return SelectCharacter{CharacterIndex: idx}, nil
	case TagSpawnPosition:
		var m SpawnPosition
		m.CharacterIndex, _ = d.ReadUint8()
		m.Position.X, _ = d.ReadFloat32()
		m.Position.Y, _ = d.ReadFloat32()
		m.Position.Z, _ = d.ReadFloat32()
		return m, nil
	case TagSelectError:
		msg, _ := d.ReadFixedString()
		return SelectError{Message: msg}, nil
	case TagPositionAccepted:
		idx, _ := d.ReadUint8()
		return PositionAccepted{CharacterIndex: idx}, nil
	case TagLifeUpdate:
		var m LifeUpdate
		m.CharacterIndex, _ = d.ReadUint8()
		m.Lives, _ = d.ReadInt32()
		return m, nil
	default:
		idx, _ := d.ReadUint8()
		return HackerFlag{CharacterIndex: idx}, nil
	}
}

// DecodeFrame reads one tag and its payload from the start of b and returns
// the message with the number of bytes consumed.
func DecodeFrame(dir Direction, b []byte) (Message, int, error) {
	d := NewDecoder(b)
	raw, err := d.ReadUint8()
	if err != nil {
		return nil, 0, &DecodeError{Err: ErrEmptyFrame}
	}
	m, err := Decode(dir, Tag(raw), d)
	if err != nil {
		return nil, 1, err
	}
	return m, d.Position(), nil
}
