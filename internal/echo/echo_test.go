package echo

import (
	"context"
	"testing"

	"github.com/sro-proto/session/internal/registry"
	"github.com/sro-proto/session/internal/wire"
)

type fakeSession struct {
	sent *wire.Message
}

func (f *fakeSession) Send(_ context.Context, m *wire.Message) error {
	f.sent = m
	return nil
}
func (f *fakeSession) Disconnect() {}

func TestServiceHandlersCoverOpcode(t *testing.T) {
	handlers := Service{}.Handlers()
	if _, ok := handlers[Opcode]; !ok {
		t.Fatal("Service must register a handler for Opcode")
	}
}

func TestHandleEchoReturnsPayloadUnchanged(t *testing.T) {
	sess := &fakeSession{}
	msg := wire.New(Opcode, 3)
	msg.WriteBytes([]byte("abc"))

	reg := registry.New()
	reg.RegisterService(Service{})

	if err := reg.Dispatch(context.Background(), sess, msg); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sess.sent == nil {
		t.Fatal("expected a reply to be sent")
	}
	if string(sess.sent.Bytes()) != "abc" {
		t.Fatalf("got %q", sess.sent.Bytes())
	}
}
