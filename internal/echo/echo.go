// Package echo is the demo application built on top of the core: one
// opcode that echoes its payload back to the sender.
package echo

import (
	"context"
	"log/slog"

	"github.com/sro-proto/session/internal/registry"
	"github.com/sro-proto/session/internal/wire"
)

// Opcode is the demo application opcode; it carries no schema beyond a
// raw byte payload.
const Opcode = wire.Opcode(0x1001)

// Service implements registry.Service, replying to every Opcode message
// with its own payload.
type Service struct{}

// Handlers returns this service's opcode -> handler table.
func (Service) Handlers() map[wire.Opcode]registry.Handler {
	return map[wire.Opcode]registry.Handler{
		Opcode: handleEcho,
	}
}

func handleEcho(ctx context.Context, sess registry.Session, msg *wire.Message) error {
	reply := wire.New(Opcode, int(msg.Size()))
	reply.WriteBytes(msg.Bytes())
	if err := sess.Send(ctx, reply); err != nil {
		return err
	}
	slog.Debug("echoed message", "bytes", msg.Size())
	return nil
}
