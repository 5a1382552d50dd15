package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/sro-proto/session/internal/wire"
)

type fakeSession struct {
	sent []*wire.Message
}

func (f *fakeSession) Send(_ context.Context, m *wire.Message) error {
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeSession) Disconnect() {}

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	r := New()
	var order []string
	r.RegisterHandler(1, func(_ context.Context, _ Session, _ *wire.Message) error {
		order = append(order, "first")
		return nil
	})
	r.RegisterHandler(1, func(_ context.Context, _ Session, _ *wire.Message) error {
		order = append(order, "second")
		return nil
	})

	err := r.Dispatch(context.Background(), &fakeSession{}, wire.New(1, 0))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestDispatchStopsOnFirstError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	ran := false
	r.RegisterHandler(1, func(_ context.Context, _ Session, _ *wire.Message) error { return boom })
	r.RegisterHandler(1, func(_ context.Context, _ Session, _ *wire.Message) error {
		ran = true
		return nil
	})

	err := r.Dispatch(context.Background(), &fakeSession{}, wire.New(1, 0))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if ran {
		t.Fatal("second handler must not run after the first fails")
	}
}

type echoService struct {
	calls *int
}

func (s echoService) Handlers() map[wire.Opcode]Handler {
	return map[wire.Opcode]Handler{
		2: func(_ context.Context, _ Session, _ *wire.Message) error {
			*s.calls++
			return nil
		},
	}
}

func TestRegisterServiceIsIdempotentPerType(t *testing.T) {
	r := New()
	calls := 0
	svc := echoService{calls: &calls}

	r.RegisterService(svc)
	r.RegisterService(svc)

	if err := r.Dispatch(context.Background(), &fakeSession{}, wire.New(2, 0)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one handler installed, got %d calls", calls)
	}
}

func TestDispatchOnUnregisteredOpcodeIsNoop(t *testing.T) {
	r := New()
	if err := r.Dispatch(context.Background(), &fakeSession{}, wire.New(99, 0)); err != nil {
		t.Fatalf("Dispatch on unregistered opcode should be a no-op: %v", err)
	}
}
