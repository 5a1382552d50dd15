package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/sro-proto/session/internal/cipher"
	"github.com/sro-proto/session/internal/protocolstate"
)

const (
	sizeHeaderLen  = 2
	envelopeOpcode = 2 // opcode field width inside the envelope
	envelopeFixed  = 4 // opcode(2) + count(1) + crc(1)
	encryptedBit   = uint16(0x8000)
	sizeMask       = uint16(0x7FFF)
)

// HeaderLen is the fixed size-header width on the wire.
const HeaderLen = sizeHeaderLen

// BodyLen returns the number of bytes that follow the 2-byte size header
// for a frame whose header value is sizeHeader. It depends only on the
// header itself: encrypted frames are padded to a Blowfish block boundary,
// so the wire byte count is not simply dataSize+4.
func BodyLen(sizeHeader uint16) int {
	dataSize := int(sizeHeader & sizeMask)
	if sizeHeader&encryptedBit != 0 {
		return cipher.PaddedLen(dataSize + envelopeFixed)
	}
	return dataSize + envelopeFixed
}

// Encode serializes m into a complete wire frame (size header included),
// consuming one tick of state's send count sequence.
func Encode(m *Message, state *protocolstate.State) ([]byte, error) {
	dataSize := int(m.Size())
	if dataSize > PayloadMax {
		return nil, fmt.Errorf("%w: payload size %d exceeds max %d", ErrMalformed, dataSize, PayloadMax)
	}

	count := state.NextSendCount()
	opts := state.Option()

	envelope := make([]byte, envelopeFixed+dataSize)
	binary.LittleEndian.PutUint16(envelope[0:2], uint16(m.Opcode()))
	copy(envelope[envelopeFixed:], m.Bytes())
	if opts.Has(protocolstate.OptionErrorDetection) {
		envelope[2] = count
		envelope[3] = cipher.ChecksumByte(envelope, state.CRCSeed())
	}

	if opts.Has(protocolstate.OptionEncryption) {
		bf := state.Blowfish()
		if bf == nil {
			return nil, fmt.Errorf("%w: encryption negotiated but no key installed", ErrMalformed)
		}
		padded := cipher.PaddedLen(len(envelope))
		plain := make([]byte, padded)
		copy(plain, envelope)
		bf.Encrypt(plain)

		frame := make([]byte, sizeHeaderLen+len(plain))
		binary.LittleEndian.PutUint16(frame[:sizeHeaderLen], uint16(dataSize)|encryptedBit)
		copy(frame[sizeHeaderLen:], plain)
		return frame, nil
	}

	frame := make([]byte, sizeHeaderLen+len(envelope))
	binary.LittleEndian.PutUint16(frame[:sizeHeaderLen], uint16(dataSize))
	copy(frame[sizeHeaderLen:], envelope)
	return frame, nil
}

// Decode parses one frame body (everything after the 2-byte size header,
// exactly BodyLen(sizeHeader) bytes) into a Message, consuming one tick of
// state's receive count sequence.
func Decode(sizeHeader uint16, body []byte, state *protocolstate.State) (*Message, error) {
	dataSize := int(sizeHeader & sizeMask)
	isEncrypted := sizeHeader&encryptedBit != 0

	if dataSize > PayloadMax {
		return nil, fmt.Errorf("%w: payload size %d exceeds max %d", ErrMalformed, dataSize, PayloadMax)
	}

	opts := state.Option()
	if isEncrypted != opts.Has(protocolstate.OptionEncryption) {
		return nil, fmt.Errorf("%w: encryption bit %v does not match negotiated option", ErrMalformed, isEncrypted)
	}

	var plain []byte
	if isEncrypted {
		bf := state.Blowfish()
		if bf == nil {
			return nil, fmt.Errorf("%w: encryption negotiated but no key installed", ErrMalformed)
		}
		if len(body) != cipher.PaddedLen(dataSize+envelopeFixed) {
			return nil, fmt.Errorf("%w: encrypted body length %d does not match expected padding", ErrMalformed, len(body))
		}
		plain = make([]byte, len(body))
		copy(plain, body)
		bf.Decrypt(plain)
	} else {
		if len(body) != dataSize+envelopeFixed {
			return nil, fmt.Errorf("%w: body length %d does not match data size %d", ErrMalformed, len(body), dataSize)
		}
		plain = body
	}

	if len(plain) < envelopeFixed+dataSize {
		return nil, fmt.Errorf("%w: decoded envelope shorter than declared payload", ErrMalformed)
	}

	opcode := Opcode(binary.LittleEndian.Uint16(plain[0:2]))
	gotCount := plain[2]
	gotCRC := plain[3]
	payload := append([]byte(nil), plain[envelopeFixed:envelopeFixed+dataSize]...)

	wantCount := state.NextRecvCount()

	if opts.Has(protocolstate.OptionErrorDetection) {
		check := make([]byte, envelopeFixed+dataSize)
		copy(check, plain[:envelopeFixed+dataSize])
		check[3] = 0
		wantCRC := cipher.ChecksumByte(check, state.CRCSeed())

		if gotCount != wantCount {
			return nil, fmt.Errorf("%w: count byte mismatch", ErrMalformed)
		}
		if gotCRC != wantCRC {
			return nil, fmt.Errorf("%w: crc byte mismatch", ErrMalformed)
		}
	}

	return FromBytes(opcode, payload), nil
}
