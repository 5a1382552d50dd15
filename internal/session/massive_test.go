package session

import (
	"bytes"
	"testing"

	"github.com/sro-proto/session/internal/wire"
)

func TestMassiveSplitReassembleRoundTrip(t *testing.T) {
	sizes := []int{0, 1, massiveChunkBytes, massiveChunkBytes + 1, 8 * wire.PayloadMax}
	for _, n := range sizes {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}

		m := wire.New(0x9001, n)
		m.WriteBytes(payload)
		m.Massive = true

		frames := splitMassive(m)

		var r reassembler
		var got *wire.Message
		for _, f := range frames {
			done, err := r.feed(f)
			if err != nil {
				t.Fatalf("size %d: feed: %v", n, err)
			}
			if done != nil {
				got = done
			}
		}
		if got == nil {
			t.Fatalf("size %d: assembly never completed", n)
		}
		if got.Opcode() != 0x9001 {
			t.Fatalf("size %d: opcode mismatch: %v", n, got.Opcode())
		}
		if !bytes.Equal(got.Bytes(), payload) {
			t.Fatalf("size %d: payload mismatch", n)
		}
	}
}

func TestMassiveHeaderWithNoDataChunksThenAnotherHeaderFails(t *testing.T) {
	m := wire.New(0x9002, 10)
	m.WriteBytes(make([]byte, 10))
	m.Massive = true
	frames := splitMassive(m)

	var r reassembler
	if _, err := r.feed(frames[0]); err != nil {
		t.Fatalf("first header: %v", err)
	}
	second := splitMassive(m)[0] // a fresh header whose read cursor is unread
	if _, err := r.feed(second); err == nil {
		t.Fatal("expected failure on a second header before any data chunk")
	}
}

func TestMassiveDataChunkWithNoOpenAssemblyFails(t *testing.T) {
	m := wire.New(0x9003, 10)
	m.WriteBytes(make([]byte, 10))
	m.Massive = true
	frames := splitMassive(m)

	var r reassembler
	if _, err := r.feed(frames[1]); err == nil {
		t.Fatal("expected failure feeding a data chunk with no open assembly")
	}
}

func TestNonMassiveFrameMidAssemblyFails(t *testing.T) {
	m := wire.New(0x9004, 10)
	m.WriteBytes(make([]byte, 10))
	m.Massive = true
	frames := splitMassive(m)

	var r reassembler
	if _, err := r.feed(frames[0]); err != nil {
		t.Fatalf("header: %v", err)
	}
	other := wire.New(0x1234, 0)
	if _, err := r.feed(other); err == nil {
		t.Fatal("expected failure on non-MASSIVE frame mid-assembly")
	}
}

func TestDropClearsInFlightAssembly(t *testing.T) {
	m := wire.New(0x9005, 10)
	m.WriteBytes(make([]byte, 10))
	m.Massive = true
	frames := splitMassive(m)

	var r reassembler
	if _, err := r.feed(frames[0]); err != nil {
		t.Fatalf("header: %v", err)
	}
	r.drop()
	if _, err := r.feed(frames[1]); err == nil {
		t.Fatal("expected failure feeding a data chunk after drop")
	}
}
