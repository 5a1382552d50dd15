package session

import (
	"sync"

	"github.com/sro-proto/session/internal/wire"
)

// frameBuffers pools the per-frame buffers receiveOne needs each trip
// through the steady loop: a fixed HeaderLen header and a body sized by
// wire.BodyLen. Pooling only the body buffer is deliberate: the header is
// always exactly wire.HeaderLen bytes, too small for pooling to matter, so
// it is allocated plainly.
type frameBuffers struct {
	bodies sync.Pool
}

func newFrameBuffers(bodyCap int) *frameBuffers {
	fb := &frameBuffers{}
	fb.bodies.New = func() any {
		return make([]byte, 0, bodyCap)
	}
	return fb
}

// header allocates a fresh HeaderLen-sized buffer for the size header read.
func (fb *frameBuffers) header() []byte {
	return make([]byte, wire.HeaderLen)
}

// body returns a slice of exactly size bytes, reused from the pool when it
// has enough capacity.
func (fb *frameBuffers) body(size int) []byte {
	b := fb.bodies.Get().([]byte)
	if cap(b) < size {
		fb.bodies.Put(b)
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// releaseBody returns b to the pool for reuse.
func (fb *frameBuffers) releaseBody(b []byte) {
	if b == nil {
		return
	}
	fb.bodies.Put(b[:0])
}
