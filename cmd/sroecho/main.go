// Command sroecho is a demo of the session core: a Responder listener and
// an Initiator dialer that complete the handshake with each other. Both
// sides register the echo service, but neither sends an echo message on
// its own.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sro-proto/session/internal/config"
	"github.com/sro-proto/session/internal/echo"
	"github.com/sro-proto/session/internal/registry"
	"github.com/sro-proto/session/internal/session"
)

const configPath = "config/sroecho.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	slog.Info("sroecho starting")

	cfgPath := configPath
	if p := os.Getenv("SROECHO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadEcho(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.Info("config loaded", "listen", cfg.ListenAddress, "dial", cfg.DialAddress)

	reg := registry.New()
	reg.RegisterService(echo.Service{})

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddress, err)
	}
	defer ln.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("accept loop starting", "address", ln.Addr())
		acceptLoop(gctx, ln, cfg, reg)
		return nil
	})

	g.Go(func() error {
		conn, err := net.Dial("tcp", cfg.DialAddress)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", cfg.DialAddress, err)
		}
		initiator := session.New(conn, session.RoleInitiator, 0, reg, cfg.ReadBufferSize)
		initiator.Run(gctx)
		return nil
	})

	return g.Wait()
}

func acceptLoop(ctx context.Context, ln net.Listener, cfg config.Echo, reg *registry.Registry) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Error("accept failed", "error", err)
				continue
			}
		}
		go func() {
			responder := session.New(conn, session.RoleResponder, cfg.Options(), reg, cfg.ReadBufferSize)
			responder.Run(ctx)
		}()
	}
}
