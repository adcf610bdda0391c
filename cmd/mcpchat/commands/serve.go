package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/gateway"
	"github.com/spf13/cobra"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway backed by a live MCP session",
		RunE:  runServe,
	}
}

// gatewayService adapts the chat service to the gateway boundary.
type gatewayService struct {
	svc *chat.Service
}

func (g *gatewayService) Chat(ctx context.Context, sessionID, message string) (gateway.Reply, error) {
	reply, err := g.svc.Send(ctx, sessionID, message)
	if err != nil {
		return gateway.Reply{}, err
	}
	return gateway.Reply{Text: reply.Text, ToolCalls: reply.ToolCalls}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	mgr, err := startSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer mgr.Stop(0)

	svc, err := buildService(ctx, cfg, mgr)
	if err != nil {
		return err
	}

	gatewayServer := gateway.New(cfg.Gateway, &gatewayService{svc: svc})
	errCh := make(chan error, 1)
	go func() {
		if err := gatewayServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server failed: %w", err)
		}
	}()

	fmt.Printf("mcpchat serving. Gateway: http://%s\nPress Ctrl+C to stop.\n", gatewayServer.Addr())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	if err := gatewayServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("gateway shutdown failed", "error", err)
	}

	return runErr
}
