package handshake

import (
	"context"
	"fmt"
	"io"

	"github.com/sro-proto/session/internal/cipher"
	"github.com/sro-proto/session/internal/protocolstate"
	"github.com/sro-proto/session/internal/wire"
)

// choosePG picks a 32-bit modulus and generator for the field. p only
// needs to be odd and larger than 1<<16 (spec.md does not require a
// proven prime); g is any value smaller than p.
func choosePG() (p, g uint32, err error) {
	p, err = randomUint32()
	if err != nil {
		return 0, 0, err
	}
	p |= 1<<31 | 1 // large and odd
	g, err = randomUint32()
	if err != nil {
		return 0, 0, err
	}
	g %= p
	if g < 2 {
		g = 2
	}
	return p, g, nil
}

// RunResponder drives the Responder side of the handshake over rw. options
// selects which of Encryption/ErrorDetection/KeyExchange/KeyChallenge are
// requested; options == 0 takes the trivial no-options path (spec.md §4.4
// step 1, §8 scenario 3).
func RunResponder(ctx context.Context, rw io.ReadWriter, options protocolstate.Option) (*Result, error) {
	c := newConn(rw)

	p, g, err := choosePG()
	if err != nil {
		return nil, err
	}
	a, err := randomUint32()
	if err != nil {
		return nil, err
	}
	A := modExp(g, a, p)
	initSeed, err := randomUint32()
	if err != nil {
		return nil, err
	}

	hello := encodeHello(initSeed, p, g, A, options)
	if err := c.send(ctx, hello); err != nil {
		return nil, err
	}

	if options == 0 {
		// The Initiator answers a no-options Hello with its closing ack;
		// consume it here so that write completes before the session moves on.
		if _, err := c.recv(ctx); err != nil {
			return nil, err
		}
		return &Result{Options: 0}, nil
	}

	exchange, err := c.recv(ctx)
	if err != nil {
		return nil, err
	}
	B, clientTag, err := decodeExchange(exchange)
	if err != nil {
		return nil, err
	}

	K := modExp(B, a, p)
	wantClientTag := challengeTag(K, initSeed, 'C')
	if clientTag != wantClientTag {
		return nil, fmt.Errorf("%w: client challenge mismatch", ErrFailure)
	}

	bf, err := cipher.NewBlowfish(deriveBlowfishKey(K, initSeed))
	if err != nil {
		return nil, fmt.Errorf("handshake: install key: %w", err)
	}

	serverTag := challengeTag(K, initSeed, 'S')
	if err := c.send(ctx, encodeConfirm(serverTag)); err != nil {
		return nil, err
	}

	// The Initiator's closing ack must be consumed here, before the session
	// starts its steady receive loop: it travels on the handshake's
	// always-plaintext wire state, which the steady loop's (possibly now
	// encrypted) protocol state could not decode.
	if _, err := c.recv(ctx); err != nil {
		return nil, err
	}

	return &Result{
		Blowfish:  bf,
		Options:   options,
		CountSeed: countSeed(K),
		CRCSeed:   crcSeed(K),
	}, nil
}

func encodeHello(initSeed, p, g, a uint32, options protocolstate.Option) []byte {
	buf := make([]byte, 1+2+4+4+4+4+1)
	buf[0] = setupKindHello
	id := HandshakeID
	buf[1] = byte(id)
	buf[2] = byte(id >> 8)
	putLE32(buf[3:7], initSeed)
	putLE32(buf[7:11], p)
	putLE32(buf[11:15], g)
	putLE32(buf[15:19], a)
	buf[19] = byte(options)
	return buf
}

func decodeHello(payload []byte) (initSeed, p, g, A uint32, options protocolstate.Option, err error) {
	if len(payload) < 20 {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: short hello frame", ErrFailure)
	}
	if payload[0] != setupKindHello {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: expected hello frame, got kind %d", ErrFailure, payload[0])
	}
	id := uint16(payload[1]) | uint16(payload[2])<<8
	if id != HandshakeID {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: unrecognized handshake id 0x%04x", ErrFailure, id)
	}
	initSeed = getLE32(payload[3:7])
	p = getLE32(payload[7:11])
	g = getLE32(payload[11:15])
	A = getLE32(payload[15:19])
	options = protocolstate.Option(payload[19])
	return initSeed, p, g, A, options, nil
}

func encodeExchange(b uint32, clientTag [challengeTagLen]byte) []byte {
	buf := make([]byte, 1+4+challengeTagLen)
	buf[0] = setupKindExchange
	putLE32(buf[1:5], b)
	copy(buf[5:], clientTag[:])
	return buf
}

func decodeExchange(m *wire.Message) (b uint32, clientTag [challengeTagLen]byte, err error) {
	payload := m.Bytes()
	if len(payload) != 1+4+challengeTagLen {
		return 0, clientTag, fmt.Errorf("%w: malformed exchange frame", ErrFailure)
	}
	if payload[0] != setupKindExchange {
		return 0, clientTag, fmt.Errorf("%w: expected exchange frame, got kind %d", ErrFailure, payload[0])
	}
	b = getLE32(payload[1:5])
	copy(clientTag[:], payload[5:])
	return b, clientTag, nil
}

func encodeConfirm(serverTag [challengeTagLen]byte) []byte {
	buf := make([]byte, 1+challengeTagLen)
	buf[0] = setupKindConfirm
	copy(buf[1:], serverTag[:])
	return buf
}

func decodeConfirm(m *wire.Message) (serverTag [challengeTagLen]byte, err error) {
	payload := m.Bytes()
	if len(payload) != 1+challengeTagLen {
		return serverTag, fmt.Errorf("%w: malformed confirm frame", ErrFailure)
	}
	if payload[0] != setupKindConfirm {
		return serverTag, fmt.Errorf("%w: expected confirm frame, got kind %d", ErrFailure, payload[0])
	}
	copy(serverTag[:], payload[1:])
	return serverTag, nil
}

func encodeAck() []byte { return []byte{setupKindAck} }

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func getLE32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}
