// Package registry maps opcodes to ordered handler chains. It has no
// runtime reflection: handlers are registered explicitly, optionally
// grouped through the Service interface (spec §9's portable redesign of
// the source's attribute-scanning handler discovery).
package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sro-proto/session/internal/wire"
)

// Session is the minimal surface a Handler needs from its owning session.
// Defined here (rather than importing the session package) to avoid a
// registry<->session import cycle: session depends on registry, not the
// other way around.
type Session interface {
	Send(ctx context.Context, m *wire.Message) error
	Disconnect()
}

// Handler processes one decoded message. A non-nil error is always fatal
// to the session (spec §7's HandlerFailure).
type Handler func(ctx context.Context, sess Session, msg *wire.Message) error

// Service groups related handlers under one registration call, mirroring
// the teacher's per-state dispatch tables without the single-type-per-role
// duplication (spec §9).
type Service interface {
	Handlers() map[wire.Opcode]Handler
}

// Registry maps opcode -> ordered handler chain. It is mutated only before
// a session's receive loop starts; once dispatch begins it is read-only
// (spec §5's shared-resource policy).
type Registry struct {
	handlers      map[wire.Opcode][]Handler
	registeredSvc map[reflect.Type]bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers:      make(map[wire.Opcode][]Handler),
		registeredSvc: make(map[reflect.Type]bool),
	}
}

// RegisterHandler appends h to opcode's handler chain.
func (r *Registry) RegisterHandler(opcode wire.Opcode, h Handler) {
	r.handlers[opcode] = append(r.handlers[opcode], h)
}

// RegisterService installs every handler svc.Handlers() returns. A second
// registration of the same concrete service type is a no-op, matching
// spec §4.6's "idempotent per service type".
func (r *Registry) RegisterService(svc Service) {
	t := reflect.TypeOf(svc)
	if r.registeredSvc[t] {
		return
	}
	r.registeredSvc[t] = true
	for opcode, h := range svc.Handlers() {
		r.RegisterHandler(opcode, h)
	}
}

// Dispatch runs every handler registered for msg.Opcode(), in registration
// order, stopping at (and returning) the first error.
func (r *Registry) Dispatch(ctx context.Context, sess Session, msg *wire.Message) error {
	for _, h := range r.handlers[msg.Opcode()] {
		if err := h(ctx, sess, msg); err != nil {
			return fmt.Errorf("registry: handler for opcode 0x%04x: %w", msg.Opcode(), err)
		}
	}
	return nil
}

// Has reports whether any handler is registered for opcode.
func (r *Registry) Has(opcode wire.Opcode) bool {
	return len(r.handlers[opcode]) > 0
}
