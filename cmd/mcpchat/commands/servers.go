package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/mcpchat/mcpchat/internal/mcp"
	"github.com/spf13/cobra"
)

const serverProbeTimeout = 8 * time.Second

var probeServer = probeServerLive

type serverStatus struct {
	Name      string
	Connected bool
	ToolCount int
	Message   string
}

func NewServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Show configured MCP servers and their health",
		RunE:  runServersStatus,
	}

	cmd.AddCommand(
		newServersProbeCmd(),
		newServersDisableCmd(),
	)

	return cmd
}

func newServersProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <server>",
		Short: "Launch one MCP server and verify handshake and tool listing",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersProbe,
	}
}

func newServersDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <server>",
		Short: "Disable an MCP server in config",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersDisable,
	}
}

func runServersStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Servers) == 0 {
		fmt.Println("No MCP servers configured.")
		return nil
	}

	fmt.Println("MCP servers:")
	for _, spec := range cfg.Servers {
		if !spec.IsEnabled() {
			fmt.Printf("  %s: disabled\n", spec.Name)
			continue
		}

		status, probeErr := probeWithTimeout(spec, cfg.Timeouts)
		if probeErr != nil {
			fmt.Printf("  %s: degraded (%v)\n", spec.Name, probeErr)
			continue
		}
		if !status.Connected {
			msg := strings.TrimSpace(status.Message)
			if msg == "" {
				msg = "unknown error"
			}
			fmt.Printf("  %s: degraded (%s)\n", spec.Name, msg)
			continue
		}
		fmt.Printf("  %s: connected (tools=%d)\n", spec.Name, status.ToolCount)
	}

	return nil
}

func runServersProbe(cmd *cobra.Command, args []string) error {
	serverName := strings.TrimSpace(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	spec, ok := findServer(cfg, serverName)
	if !ok {
		return fmt.Errorf("mcp server not found: %s", serverName)
	}
	if !spec.IsEnabled() {
		return fmt.Errorf("mcp server %s is disabled in config", serverName)
	}

	status, probeErr := probeWithTimeout(spec, cfg.Timeouts)
	if probeErr != nil {
		return fmt.Errorf("probe %s failed: %w", serverName, probeErr)
	}
	if !status.Connected {
		msg := strings.TrimSpace(status.Message)
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("mcp server %s is degraded: %s", serverName, msg)
	}

	fmt.Printf("MCP server %s is healthy (tools=%d).\n", serverName, status.ToolCount)
	return nil
}

func runServersDisable(cmd *cobra.Command, args []string) error {
	serverName := strings.TrimSpace(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	found := false
	for i := range cfg.Servers {
		if cfg.Servers[i].Name == serverName {
			disabled := false
			cfg.Servers[i].Enabled = &disabled
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("mcp server not found: %s", serverName)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("MCP server %s disabled in config.\n", serverName)
	return nil
}

func findServer(cfg *config.Config, name string) (config.ServerSpec, bool) {
	for _, spec := range cfg.Servers {
		if spec.Name == name {
			return spec, true
		}
	}
	return config.ServerSpec{}, false
}

func probeWithTimeout(spec config.ServerSpec, timeouts config.TimeoutsConfig) (serverStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), serverProbeTimeout)
	defer cancel()

	return probeServer(ctx, spec, mcp.TimeoutsFromConfig(timeouts))
}

// probeServerLive launches the server, performs the handshake, lists its
// tools and shuts it down again.
func probeServerLive(ctx context.Context, spec config.ServerSpec, timeouts mcp.Timeouts) (serverStatus, error) {
	launcher := mcp.NewStdioLauncher(timeouts)
	conn, err := launcher.Open(ctx, spec)
	if err != nil {
		return serverStatus{}, err
	}
	defer conn.Close(timeouts.Shutdown)

	if err := conn.Handshake(ctx); err != nil {
		return serverStatus{Name: spec.Name, Message: err.Error()}, nil
	}
	tools, err := conn.ListTools(ctx)
	if err != nil {
		return serverStatus{Name: spec.Name, Message: err.Error()}, nil
	}

	return serverStatus{
		Name:      spec.Name,
		Connected: true,
		ToolCount: len(tools),
	}, nil
}
