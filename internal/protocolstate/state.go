// Package protocolstate holds the per-session values the handshake
// negotiates and the frame codec consumes: encryption/error-detection
// options, the derived Blowfish key, and the count/CRC seeds.
package protocolstate

import (
	"sync"

	"github.com/sro-proto/session/internal/cipher"
)

// Option is a bitset of negotiated wire features.
type Option uint8

const (
	OptionEncryption Option = 1 << iota
	OptionErrorDetection
	OptionKeyExchange
	OptionKeyChallenge
)

// Has reports whether all bits in want are set.
func (o Option) Has(want Option) bool { return o&want == want }

// Phase is the top-level handshake/session state enum from spec §3.
type Phase int

const (
	PhaseWaitSetup Phase = iota
	PhaseHandshakeBegin
	PhaseHandshakeChallenge
	PhaseReady
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitSetup:
		return "WaitSetup"
	case PhaseHandshakeBegin:
		return "HandshakeBegin"
	case PhaseHandshakeChallenge:
		return "HandshakeChallenge"
	case PhaseReady:
		return "Ready"
	case PhaseClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// State is the mutable protocol state of one session. It is written only by
// the handshake service (key/seed installation, phase transitions) and by
// the frame codec's count-advance, both on the session's single
// receive/send task — never concurrently — but Get/Set are still
// mutex-guarded so a session's accessors remain safe to call from a
// handler goroutine inspecting state mid-dispatch.
type State struct {
	mu sync.Mutex

	phase  Phase
	option Option

	bf *cipher.Blowfish

	crcSeed   byte
	sendCount *cipher.CountGenerator
	recvCount *cipher.CountGenerator
}

// New creates a State in the given initial phase (HandshakeBegin for a
// Responder, WaitSetup for an Initiator — spec §4.4). Count/CRC seeds
// default to zero so that pre-handshake SETUP frames — which still carry
// count and CRC bytes on the wire per spec §4.3 — have a generator to draw
// from before the handshake installs the real, secret-derived seeds.
func New(initial Phase) *State {
	return &State{
		phase:     initial,
		sendCount: cipher.NewCountGenerator(0),
		recvCount: cipher.NewCountGenerator(0),
	}
}

// Phase returns the current top-level state.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase transitions to a new top-level state.
func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

// Option returns the negotiated option bitset.
func (s *State) Option() Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.option
}

// SetOption overwrites the negotiated option bitset.
func (s *State) SetOption(o Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.option = o
}

// InstallKey installs the derived Blowfish cipher and the count/CRC seeds
// scheduled from the shared secret. Called exactly once per session, by the
// handshake service.
func (s *State) InstallKey(bf *cipher.Blowfish, countSeed, crcSeed byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bf = bf
	s.crcSeed = crcSeed
	s.sendCount = cipher.NewCountGenerator(countSeed)
	s.recvCount = cipher.NewCountGenerator(countSeed)
}

// Blowfish returns the installed cipher, or nil if encryption was never
// negotiated (or the session has been closed).
func (s *State) Blowfish() *cipher.Blowfish {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bf
}

// CRCSeed returns the installed CRC seed.
func (s *State) CRCSeed() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crcSeed
}

// NextSendCount advances and returns the next outgoing count byte.
func (s *State) NextSendCount() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendCount.Next()
}

// NextRecvCount advances and returns the next expected incoming count byte.
func (s *State) NextRecvCount() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvCount.Next()
}

// Close transitions to Closed and drops the key material, so no Blowfish
// key bytes remain reachable after the session ends (spec §5).
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseClosed
	s.bf = nil
	s.sendCount = nil
	s.recvCount = nil
}
