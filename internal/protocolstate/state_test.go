package protocolstate

import "testing"

func TestOptionHas(t *testing.T) {
	o := OptionEncryption | OptionErrorDetection
	if !o.Has(OptionEncryption) {
		t.Fatal("expected Encryption bit set")
	}
	if o.Has(OptionKeyExchange) {
		t.Fatal("did not expect KeyExchange bit set")
	}
}

func TestInstallKeyThenClose(t *testing.T) {
	s := New(PhaseHandshakeBegin)
	s.InstallKey(nil, 0x42, 0x24)
	s.SetOption(OptionEncryption)
	s.SetPhase(PhaseReady)

	if s.Phase() != PhaseReady {
		t.Fatalf("phase = %v, want Ready", s.Phase())
	}
	if s.CRCSeed() != 0x24 {
		t.Fatalf("crc seed = %x, want 0x24", s.CRCSeed())
	}

	s.Close()
	if s.Phase() != PhaseClosed {
		t.Fatalf("phase after Close = %v, want Closed", s.Phase())
	}
	if s.Blowfish() != nil {
		t.Fatal("Blowfish must be nil after Close")
	}
}

func TestCountSequenceAdvancesIndependently(t *testing.T) {
	s := New(PhaseReady)
	s.InstallKey(nil, 1, 0)

	first := s.NextSendCount()
	second := s.NextSendCount()
	if first == second {
		t.Fatal("consecutive NextSendCount calls should not repeat for this generator")
	}

	recv := s.NextRecvCount()
	if recv != first {
		t.Fatalf("recv count = %x, want %x (independent generator seeded identically)", recv, first)
	}
}
