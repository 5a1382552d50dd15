package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies a message's payload schema and routing target.
type Opcode uint16

// Reserved opcodes. OpcodeMassive is the fragmentation envelope's fixed
// value; OpcodeSetup = 0x00 is this implementation's own choice, kept
// clear of ordinary application opcodes. Neither may be reassigned.
const (
	OpcodeSetup   Opcode = 0x00
	OpcodeMassive Opcode = 0x5000
)

// PayloadMax is the largest payload a single (non-MASSIVE) frame may carry.
// Spec §6: the wire header can address up to 32767 bytes, but interop with
// the reference peer requires capping at 4089.
const PayloadMax = 4089

// Message is an opcode-tagged byte payload with independent append and read
// cursors. A Message is owned by exactly one participant at a time: the
// sender building it, the codec serializing or parsing it, or the handler
// consuming it.
type Message struct {
	opcode  Opcode
	data    []byte
	readPos int

	// Massive requests fragmentation on send: when set, the session sends
	// the message as MASSIVE frames whatever its size (see the session
	// package).
	Massive bool
}

// New creates an empty message targeting opcode, optionally preallocating
// capacityHint bytes of payload backing storage.
func New(opcode Opcode, capacityHint int) *Message {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Message{
		opcode: opcode,
		data:   make([]byte, 0, capacityHint),
	}
}

// FromBytes wraps an already-decoded payload for reading. The returned
// Message's read cursor starts at zero.
func FromBytes(opcode Opcode, payload []byte) *Message {
	return &Message{opcode: opcode, data: payload}
}

// Opcode returns the message's opcode.
func (m *Message) Opcode() Opcode { return m.opcode }

// Size returns the current payload length in bytes.
func (m *Message) Size() uint16 { return uint16(len(m.data)) }

// Bytes returns the full payload for codec use. The slice aliases the
// message's internal storage; callers must not retain it past the
// message's lifetime.
func (m *Message) Bytes() []byte { return m.data }

// Append adds raw bytes to the payload's write end, independent of the read
// cursor.
func (m *Message) Append(b []byte) {
	m.data = append(m.data, b...)
}

// remaining returns the unread tail of the payload.
func (m *Message) remaining() []byte {
	if m.readPos >= len(m.data) {
		return nil
	}
	return m.data[m.readPos:]
}

// WriteUint8 appends a single byte.
func (m *Message) WriteUint8(v uint8) { m.data = append(m.data, v) }

// WriteUint16 appends a little-endian uint16.
func (m *Message) WriteUint16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	m.data = append(m.data, buf[:]...)
}

// WriteUint32 appends a little-endian uint32.
func (m *Message) WriteUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	m.data = append(m.data, buf[:]...)
}

// WriteUint64 appends a little-endian uint64.
func (m *Message) WriteUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	m.data = append(m.data, buf[:]...)
}

// WriteBytes appends raw bytes verbatim, with no length prefix.
func (m *Message) WriteBytes(b []byte) { m.data = append(m.data, b...) }

// WriteString appends a UTF-8 string as a u16 length prefix followed by its
// bytes.
func (m *Message) WriteString(s string) {
	m.WriteUint16(uint16(len(s)))
	m.data = append(m.data, s...)
}

// ReadUint8 reads one byte, advancing the read cursor.
func (m *Message) ReadUint8() (uint8, error) {
	r := m.remaining()
	if len(r) < 1 {
		return 0, fmt.Errorf("%w: read uint8 past end of payload", ErrMalformed)
	}
	m.readPos++
	return r[0], nil
}

// ReadUint16 reads a little-endian uint16, advancing the read cursor.
func (m *Message) ReadUint16() (uint16, error) {
	r := m.remaining()
	if len(r) < 2 {
		return 0, fmt.Errorf("%w: read uint16 past end of payload", ErrMalformed)
	}
	m.readPos += 2
	return binary.LittleEndian.Uint16(r), nil
}

// ReadUint32 reads a little-endian uint32, advancing the read cursor.
func (m *Message) ReadUint32() (uint32, error) {
	r := m.remaining()
	if len(r) < 4 {
		return 0, fmt.Errorf("%w: read uint32 past end of payload", ErrMalformed)
	}
	m.readPos += 4
	return binary.LittleEndian.Uint32(r), nil
}

// ReadUint64 reads a little-endian uint64, advancing the read cursor.
func (m *Message) ReadUint64() (uint64, error) {
	r := m.remaining()
	if len(r) < 8 {
		return 0, fmt.Errorf("%w: read uint64 past end of payload", ErrMalformed)
	}
	m.readPos += 8
	return binary.LittleEndian.Uint64(r), nil
}

// ReadBytes reads n raw bytes, advancing the read cursor. The returned
// slice aliases the message's storage.
func (m *Message) ReadBytes(n int) ([]byte, error) {
	r := m.remaining()
	if len(r) < n {
		return nil, fmt.Errorf("%w: read %d bytes past end of payload", ErrMalformed, n)
	}
	m.readPos += n
	return r[:n], nil
}

// ReadString reads a u16 length prefix followed by that many bytes,
// advancing the read cursor.
func (m *Message) ReadString() (string, error) {
	n, err := m.ReadUint16()
	if err != nil {
		return "", fmt.Errorf("%w: read string length: %v", ErrMalformed, err)
	}
	b, err := m.ReadBytes(int(n))
	if err != nil {
		return "", fmt.Errorf("%w: read string body: %v", ErrMalformed, err)
	}
	return string(b), nil
}
