package session

import (
	"fmt"

	"github.com/sro-proto/session/internal/wire"
)

// massiveFlagHeader and massiveFlagData tag the two MASSIVE frame shapes
// from spec §4.5.
const (
	massiveFlagData   = 0
	massiveFlagHeader = 1
)

// massiveChunkBytes is the data capacity of one MASSIVE data frame: the
// payload ceiling minus the one flag byte every MASSIVE frame carries.
const massiveChunkBytes = wire.PayloadMax - 1

// splitMassive turns a Message flagged Massive into the header frame
// followed by its data frames, in the order they must be sent. This is the
// bug-fixed version of the split the spec calls out in §4.5/§9: every
// iteration emits a distinct chunk of m's payload, never the header again.
func splitMassive(m *wire.Message) []*wire.Message {
	payload := m.Bytes()
	chunks := (len(payload) + massiveChunkBytes - 1) / massiveChunkBytes
	if chunks == 0 {
		chunks = 1 // an empty massive message still needs one (empty) data frame
	}

	frames := make([]*wire.Message, 0, chunks+1)

	header := wire.New(wire.OpcodeMassive, 5)
	header.WriteUint8(massiveFlagHeader)
	header.WriteUint16(uint16(chunks))
	header.WriteUint16(uint16(m.Opcode()))
	frames = append(frames, header)

	for i := 0; i < chunks; i++ {
		start := i * massiveChunkBytes
		end := min(start+massiveChunkBytes, len(payload))

		data := wire.New(wire.OpcodeMassive, 1+(end-start))
		data.WriteUint8(massiveFlagData)
		data.WriteBytes(payload[start:end])
		frames = append(frames, data)
	}

	return frames
}

// reassembler holds the in-flight MASSIVE assembly state for one session's
// receive side.
type reassembler struct {
	partial   *wire.Message
	remaining uint16
}

// feed processes one decoded frame. It returns a non-nil Message when a
// complete logical message is ready for dispatch (either immediately, for
// a non-MASSIVE frame, or once the last MASSIVE chunk lands). Any
// violation of the assembly protocol (spec §4.5) is a fatal, Malformed
// error.
func (r *reassembler) feed(frame *wire.Message) (*wire.Message, error) {
	if frame.Opcode() != wire.OpcodeMassive {
		if r.partial != nil {
			return nil, fmt.Errorf("%w: non-MASSIVE frame received mid-assembly", wire.ErrMalformed)
		}
		return frame, nil
	}

	flag, err := frame.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("%w: MASSIVE frame missing flag byte", wire.ErrMalformed)
	}

	switch flag {
	case massiveFlagHeader:
		if r.partial != nil {
			return nil, fmt.Errorf("%w: MASSIVE header received mid-assembly", wire.ErrMalformed)
		}
		chunks, err := frame.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: MASSIVE header missing chunk count", wire.ErrMalformed)
		}
		innerOpcode, err := frame.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("%w: MASSIVE header missing inner opcode", wire.ErrMalformed)
		}
		r.partial = wire.New(wire.Opcode(innerOpcode), int(chunks)*massiveChunkBytes)
		r.remaining = chunks
		return nil, nil

	case massiveFlagData:
		if r.partial == nil || r.remaining == 0 {
			return nil, fmt.Errorf("%w: MASSIVE data frame with no open assembly", wire.ErrMalformed)
		}
		r.partial.Append(frame.Bytes()[1:])
		r.remaining--
		if r.remaining == 0 {
			done := r.partial
			r.partial = nil
			return done, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown MASSIVE flag %d", wire.ErrMalformed, flag)
	}
}

// drop discards any in-flight assembly, e.g. on session cancellation.
func (r *reassembler) drop() {
	r.partial = nil
	r.remaining = 0
}
