package commands

import (
	"context"
	"fmt"

	"github.com/mcpchat/mcpchat/internal/chat"
	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/mcpchat/mcpchat/internal/history"
	"github.com/mcpchat/mcpchat/internal/mcp"
	"github.com/mcpchat/mcpchat/internal/provider"
	"github.com/mcpchat/mcpchat/internal/session"
)

// startSession launches the configured MCP servers and builds the session's
// tool registry. The caller owns the manager and must Stop it.
func startSession(ctx context.Context, cfg *config.Config) (*session.Manager, error) {
	timeouts := mcp.TimeoutsFromConfig(cfg.Timeouts)
	mgr := session.NewManager(mcp.NewStdioLauncher(timeouts), cfg.Chat.DuplicateTools, timeouts.Shutdown)
	if err := mgr.Start(ctx, cfg.EnabledServers()); err != nil {
		return nil, err
	}
	return mgr, nil
}

// buildService assembles the chat service on top of a started session.
func buildService(ctx context.Context, cfg *config.Config, mgr *session.Manager) (*chat.Service, error) {
	completer, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("configure model provider: %w", err)
	}

	engine := chat.NewEngine(completer, mgr.Registry(), cfg.Chat)
	store := history.NewStore(config.ConfigDir())
	return chat.NewService(engine, store), nil
}
