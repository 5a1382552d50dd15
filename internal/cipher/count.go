package cipher

// CountGenerator produces the deterministic per-frame sequence-tag byte
// described in spec §6: a pseudo-random sequence seeded by a single byte,
// advancing exactly once per encoded or decoded frame. Two generators
// seeded identically always produce identical sequences (spec §8 invariant
// 5), which is what lets ErrorDetection validate the tag without any extra
// state exchanged over the wire.
type CountGenerator struct {
	state byte
}

// NewCountGenerator seeds a generator. The seed itself is never emitted;
// the first call to Next already advances past it.
func NewCountGenerator(seed byte) *CountGenerator {
	return &CountGenerator{state: seed}
}

// Next advances the sequence and returns the new count byte.
func (g *CountGenerator) Next() byte {
	// A small linear congruential step keeps the sequence cheap and
	// branch-free while still scattering the low bits enough to catch
	// accidental frame reordering or truncation.
	g.state = g.state*179 + 37
	return g.state
}
