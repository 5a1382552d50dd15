package handshake

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sro-proto/session/internal/protocolstate"
	"github.com/sro-proto/session/internal/wire"
)

func TestHandshakeFixpointAllOptions(t *testing.T) {
	responderConn, initiatorConn := net.Pipe()
	defer responderConn.Close()
	defer initiatorConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	options := protocolstate.OptionEncryption | protocolstate.OptionErrorDetection |
		protocolstate.OptionKeyExchange | protocolstate.OptionKeyChallenge

	type outcome struct {
		result *Result
		err    error
	}
	responderCh := make(chan outcome, 1)
	initiatorCh := make(chan outcome, 1)

	go func() {
		r, err := RunResponder(ctx, responderConn, options)
		responderCh <- outcome{r, err}
	}()
	go func() {
		r, err := RunInitiator(ctx, initiatorConn)
		initiatorCh <- outcome{r, err}
	}()

	respOut := <-responderCh
	initOut := <-initiatorCh

	require.NoError(t, respOut.err)
	require.NoError(t, initOut.err)

	require.Equal(t, options, respOut.result.Options)
	require.Equal(t, options, initOut.result.Options)
	require.Equal(t, respOut.result.CountSeed, initOut.result.CountSeed)
	require.Equal(t, respOut.result.CRCSeed, initOut.result.CRCSeed)
	require.NotNil(t, respOut.result.Blowfish)
	require.NotNil(t, initOut.result.Blowfish)

	plaintext := []byte("0123456701234567")
	a := append([]byte(nil), plaintext...)
	respOut.result.Blowfish.Encrypt(a)
	initOut.result.Blowfish.Decrypt(a)
	require.Equal(t, plaintext, a, "derived keys do not agree: round trip through both ciphers failed")
}

func TestHandshakeNoOptionsTrivialPath(t *testing.T) {
	responderConn, initiatorConn := net.Pipe()
	defer responderConn.Close()
	defer initiatorConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	responderCh := make(chan outcome, 1)
	initiatorCh := make(chan outcome, 1)

	go func() {
		r, err := RunResponder(ctx, responderConn, 0)
		responderCh <- outcome{r, err}
	}()
	go func() {
		r, err := RunInitiator(ctx, initiatorConn)
		initiatorCh <- outcome{r, err}
	}()

	respOut := <-responderCh
	initOut := <-initiatorCh

	require.NoError(t, respOut.err)
	require.NoError(t, initOut.err)
	require.Zero(t, respOut.result.Options)
	require.Zero(t, initOut.result.Options)
	require.Nil(t, respOut.result.Blowfish, "no-options handshake must not install a cipher")
	require.Nil(t, initOut.result.Blowfish, "no-options handshake must not install a cipher")
}

func TestHandshakeClientChallengeMismatchFails(t *testing.T) {
	responderConn, initiatorConn := net.Pipe()
	defer responderConn.Close()
	defer initiatorConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	responderCh := make(chan error, 1)
	go func() {
		_, err := RunResponder(ctx, responderConn, protocolstate.OptionEncryption)
		responderCh <- err
	}()

	// Act as a malicious/buggy Initiator: read the Hello, then send a
	// well-formed Exchange frame carrying a bogus challenge tag.
	c := newConn(initiatorConn)
	if _, err := c.recv(ctx); err != nil {
		t.Fatalf("recv hello: %v", err)
	}
	var bogusTag [challengeTagLen]byte
	for i := range bogusTag {
		bogusTag[i] = 0xFF
	}
	if err := c.send(ctx, encodeExchange(1, bogusTag)); err != nil {
		t.Fatalf("send exchange: %v", err)
	}

	err := <-responderCh
	if !errors.Is(err, ErrFailure) {
		t.Fatalf("expected ErrFailure on bogus client challenge, got %v", err)
	}
}

func TestUnexpectedOpcodeBeforeReadyFails(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := RunInitiator(ctx, serverConn)
		resultCh <- err
	}()

	// Send an application-opcode frame instead of the expected Hello.
	plainState := protocolstate.New(protocolstate.PhaseWaitSetup)
	m := wire.New(0x1234, 0)
	frame, err := wire.Encode(m, plainState)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := clientConn.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	err = <-resultCh
	if err == nil {
		t.Fatal("expected handshake failure on unexpected opcode before Ready")
	}
	if !errors.Is(err, ErrFailure) {
		t.Fatalf("expected ErrFailure, got %v", err)
	}
}
