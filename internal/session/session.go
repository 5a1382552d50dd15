// Package session owns one TCP connection end, composes the wire codec,
// protocol state, and handshake to take it from first byte to Ready, then
// runs the steady receive -> reassemble -> dispatch loop.
package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/sro-proto/session/internal/handshake"
	"github.com/sro-proto/session/internal/protocolstate"
	"github.com/sro-proto/session/internal/registry"
	"github.com/sro-proto/session/internal/wire"
)

// Role distinguishes which side of the handshake a Session plays,
// replacing the teacher's split client/server protocol types with one
// type parameterized by role.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

// defaultBufCap is used when New is given a non-positive readBufCap.
const defaultBufCap = wire.PayloadMax + 16

// Session is one end of a connection: transport, protocol state, and
// handler registry composed into a single receive/dispatch loop. The
// zero value is not usable; construct with New.
type Session struct {
	conn     net.Conn
	role     Role
	wantOpts protocolstate.Option // Responder only: options to request
	state    *protocolstate.State
	registry *registry.Registry
	log      *slog.Logger

	sendMu sync.Mutex
	reasm  reassembler

	bufs *frameBuffers

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Session around an already-connected transport. For
// RoleResponder, wantOpts selects which handshake options to request; for
// RoleInitiator it is ignored (the Initiator learns options from the
// peer's Hello frame). readBufCap sets the body-buffer pool's starting
// capacity; a non-positive value falls back to defaultBufCap.
func New(conn net.Conn, role Role, wantOpts protocolstate.Option, reg *registry.Registry, readBufCap int) *Session {
	initialPhase := protocolstate.PhaseWaitSetup
	if role == RoleResponder {
		initialPhase = protocolstate.PhaseHandshakeBegin
	}
	if readBufCap <= 0 {
		readBufCap = defaultBufCap
	}
	return &Session{
		conn:     conn,
		role:     role,
		wantOpts: wantOpts,
		state:    protocolstate.New(initialPhase),
		registry: reg,
		log:      slog.With("remote", conn.RemoteAddr(), "role", role.String()),
		bufs:     newFrameBuffers(readBufCap),
		closed:   make(chan struct{}),
	}
}

// Run drives the session to completion: handshake, then the steady
// dispatch loop, until clean EOF, cancellation, or any protocol fault.
// Per the core's error-propagation policy, faults are logged and
// materialized as Disconnect; Run itself always returns cleanly.
func (s *Session) Run(ctx context.Context) {
	defer s.Disconnect()

	go func() {
		select {
		case <-ctx.Done():
			s.Disconnect()
		case <-s.closed:
		}
	}()

	if err := s.handshake(ctx); err != nil {
		s.log.Warn("handshake failed", "error", err)
		return
	}
	s.log.Info("session ready",
		"options", s.state.Option(),
		"encrypted", s.state.Option().Has(protocolstate.OptionEncryption))

	for {
		msg, err := s.receiveOne(ctx)
		if err != nil {
			if err != errCleanEOF {
				s.log.Warn("session fault", "error", err)
			}
			return
		}
		if msg == nil {
			continue // a MASSIVE chunk landed but the logical message is not complete yet
		}
		if err := s.registry.Dispatch(ctx, s, msg); err != nil {
			s.log.Warn("handler failure, closing session", "error", err)
			return
		}
	}
}

func (s *Session) handshake(ctx context.Context) error {
	var result *handshake.Result
	var err error
	switch s.role {
	case RoleResponder:
		result, err = handshake.RunResponder(ctx, s.conn, s.wantOpts)
	default:
		result, err = handshake.RunInitiator(ctx, s.conn)
	}
	if err != nil {
		return err
	}

	s.state.SetOption(result.Options)
	if result.Blowfish != nil {
		s.state.InstallKey(result.Blowfish, result.CountSeed, result.CRCSeed)
	}
	s.state.SetPhase(protocolstate.PhaseReady)
	return nil
}

// errCleanEOF signals an ordinary closed connection, distinct from a
// protocol fault, so Run can skip logging it as a warning.
var errCleanEOF = fmt.Errorf("session: clean eof")

// receiveOne reads and decodes exactly one wire frame, feeding it through
// MASSIVE reassembly. It returns a nil Message with a nil error when the
// frame was a MASSIVE chunk that did not complete an assembly.
func (s *Session) receiveOne(ctx context.Context) (*wire.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headerBuf := s.bufs.header()
	if _, err := io.ReadFull(s.conn, headerBuf); err != nil {
		if isCleanClose(err) {
			return nil, errCleanEOF
		}
		return nil, fmt.Errorf("session: read frame header: %w", err)
	}
	header := binary.LittleEndian.Uint16(headerBuf)

	bodyLen := wire.BodyLen(header)
	bodyBuf := s.bufs.body(bodyLen)
	defer s.bufs.releaseBody(bodyBuf)
	if _, err := io.ReadFull(s.conn, bodyBuf); err != nil {
		if isCleanClose(err) {
			return nil, errCleanEOF
		}
		return nil, fmt.Errorf("session: read frame body: %w", err)
	}

	frame, err := wire.Decode(header, bodyBuf, s.state)
	if err != nil {
		return nil, err
	}
	return s.reasm.feed(frame)
}

// Send encodes and writes msg as one or more wire frames, splitting into
// MASSIVE chunks first if msg.Massive is set. Concurrent sends on the same
// session are serialized.
func (s *Session) Send(ctx context.Context, msg *wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frames := []*wire.Message{msg}
	if msg.Massive {
		frames = splitMassive(msg)
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	for _, f := range frames {
		wireBytes, err := wire.Encode(f, s.state)
		if err != nil {
			return fmt.Errorf("session: encode frame: %w", err)
		}
		if _, err := s.conn.Write(wireBytes); err != nil {
			return fmt.Errorf("session: write frame: %w", err)
		}
	}
	return nil
}

// Disconnect closes the transport and transitions to Closed. Idempotent:
// a second call is a no-op.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		s.reasm.drop()
		s.state.Close()
		_ = s.conn.Close()
		close(s.closed)
	})
}
