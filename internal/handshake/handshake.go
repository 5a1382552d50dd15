// Package handshake drives the four-frame SETUP exchange that takes a
// session from its initial phase to Ready: a Diffie-Hellman-like key
// agreement over a 32-bit modular field, Blowfish key derivation, and a
// challenge/response that proves both sides hold the same shared secret.
package handshake

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/sro-proto/session/internal/cipher"
	"github.com/sro-proto/session/internal/protocolstate"
	"github.com/sro-proto/session/internal/wire"
)

// ErrFailure marks handshake-level failures: a challenge mismatch, an
// unexpected opcode before Ready, or a malformed or unrecognized SETUP
// payload. Transport, context and wire-codec errors are returned wrapped
// as they are, not as ErrFailure.
var ErrFailure = errors.New("handshake: failure")

// HandshakeID tags the wire flavor of this handshake so a future revision
// can be told apart defensively. This implementation recognizes exactly
// one flavor.
const HandshakeID uint16 = 0x5351

const (
	setupKindHello    uint8 = 1 // Responder -> Initiator: p, g, A, init_seed, options
	setupKindExchange uint8 = 2 // Initiator -> Responder: B, client challenge tag
	setupKindConfirm  uint8 = 3 // Responder -> Initiator: server challenge tag + ack
	setupKindAck      uint8 = 4 // Initiator -> Responder: closing ack
)

const challengeTagLen = 8

// Result is what a completed handshake installs into the session's
// protocol state.
type Result struct {
	Blowfish  *cipher.Blowfish
	Options   protocolstate.Option
	CountSeed byte
	CRCSeed   byte
}

// conn is the minimal transport a handshake needs: read and write one
// raw frame's worth of bytes. Both roles only ever exchange unencrypted
// SETUP frames, so a throwaway plaintext protocol state drives the wire
// codec here, independent of the session's real protocolstate.State,
// which is only populated once the handshake returns a Result.
type conn struct {
	rw    io.ReadWriter
	state *protocolstate.State
}

func newConn(rw io.ReadWriter) *conn {
	return &conn{rw: rw, state: protocolstate.New(protocolstate.PhaseWaitSetup)}
}

func (c *conn) send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := wire.New(wire.OpcodeSetup, len(payload))
	m.WriteBytes(payload)
	frame, err := wire.Encode(m, c.state)
	if err != nil {
		return fmt.Errorf("handshake: encode setup frame: %w", err)
	}
	if _, err := c.rw.Write(frame); err != nil {
		return fmt.Errorf("handshake: write setup frame: %w", err)
	}
	return nil
}

func (c *conn) recv(ctx context.Context) (*wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var headerBytes [wire.HeaderLen]byte
	if _, err := io.ReadFull(c.rw, headerBytes[:]); err != nil {
		return nil, fmt.Errorf("handshake: read setup header: %w", err)
	}
	header := uint16(headerBytes[0]) | uint16(headerBytes[1])<<8
	body := make([]byte, wire.BodyLen(header))
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, fmt.Errorf("handshake: read setup body: %w", err)
	}
	m, err := wire.Decode(header, body, c.state)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode setup frame: %w", err)
	}
	if m.Opcode() != wire.OpcodeSetup {
		return nil, fmt.Errorf("%w: opcode 0x%04x before Ready", ErrFailure, m.Opcode())
	}
	return m, nil
}

// randomUint32 draws a uniform 32-bit value from a cryptographic source.
func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("handshake: random: %w", err)
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// modExp computes base^exp mod m for 32-bit operands, grounded on the
// teacher's RSA modular exponentiation helper.
func modExp(base, exp, m uint32) uint32 {
	b := new(big.Int).SetUint64(uint64(base))
	e := new(big.Int).SetUint64(uint64(exp))
	mod := new(big.Int).SetUint64(uint64(m))
	return uint32(b.Exp(b, e, mod).Uint64())
}

func le32(v uint32) [4]byte {
	return [4]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// deriveBlowfishKey implements SPEC_FULL's byte schedule: the low 4 bytes
// are the little-endian shared secret, the high 4 bytes are the same
// value XORed with the little-endian init seed.
func deriveBlowfishKey(k, initSeed uint32) []byte {
	kBytes := le32(k)
	seedBytes := le32(initSeed)
	key := make([]byte, 8)
	copy(key[0:4], kBytes[:])
	for i := 0; i < 4; i++ {
		key[4+i] = kBytes[i] ^ seedBytes[i]
	}
	return key
}

// challengeTag folds the CRC-8 table eight times over k, initSeed, and a
// role byte ('C' for client/Initiator, 'S' for server/Responder),
// re-keying each fold with the previous fold's output byte.
func challengeTag(k, initSeed uint32, role byte) [challengeTagLen]byte {
	kBytes := le32(k)
	seedBytes := le32(initSeed)
	buf := make([]byte, 0, 4+4+1+challengeTagLen)
	buf = append(buf, kBytes[:]...)
	buf = append(buf, seedBytes[:]...)
	buf = append(buf, role)

	var out [challengeTagLen]byte
	seed := byte(0)
	for i := range out {
		seed = cipher.ChecksumByte(buf, seed)
		out[i] = seed
		buf = append(buf, seed)
	}
	return out
}

// countSeed and crcSeed are scheduled from the low two bytes of K.
func countSeed(k uint32) byte { return byte(k) }
func crcSeed(k uint32) byte   { return byte(k >> 8) }
