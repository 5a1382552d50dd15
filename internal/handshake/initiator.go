package handshake

import (
	"context"
	"fmt"
	"io"

	"github.com/sro-proto/session/internal/cipher"
)

// RunInitiator drives the Initiator side of the handshake over rw. Unlike
// RunResponder, the negotiated options are learned from the peer's Hello
// frame rather than chosen locally.
func RunInitiator(ctx context.Context, rw io.ReadWriter) (*Result, error) {
	c := newConn(rw)

	hello, err := c.recv(ctx)
	if err != nil {
		return nil, err
	}
	initSeed, p, g, A, options, err := decodeHello(hello.Bytes())
	if err != nil {
		return nil, err
	}

	if options == 0 {
		if err := c.send(ctx, encodeAck()); err != nil {
			return nil, err
		}
		return &Result{Options: 0}, nil
	}

	b, err := randomUint32()
	if err != nil {
		return nil, err
	}
	B := modExp(g, b, p)
	K := modExp(A, b, p)

	bf, err := cipher.NewBlowfish(deriveBlowfishKey(K, initSeed))
	if err != nil {
		return nil, fmt.Errorf("handshake: install key: %w", err)
	}

	clientTag := challengeTag(K, initSeed, 'C')
	if err := c.send(ctx, encodeExchange(B, clientTag)); err != nil {
		return nil, err
	}

	confirm, err := c.recv(ctx)
	if err != nil {
		return nil, err
	}
	serverTag, err := decodeConfirm(confirm)
	if err != nil {
		return nil, err
	}
	wantServerTag := challengeTag(K, initSeed, 'S')
	if serverTag != wantServerTag {
		return nil, fmt.Errorf("%w: server challenge mismatch", ErrFailure)
	}

	if err := c.send(ctx, encodeAck()); err != nil {
		return nil, err
	}

	return &Result{
		Blowfish:  bf,
		Options:   options,
		CountSeed: countSeed(K),
		CRCSeed:   crcSeed(K),
	}, nil
}
