package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := config.ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Servers = []config.ServerSpec{
		{
			Name:    "filesystem",
			Command: "npx",
			Args:    []string{"-y", "@modelcontextprotocol/server-filesystem", "."},
		},
	}

	dirs := []string{
		config.ConfigDir(),
		filepath.Join(config.ConfigDir(), "conversations"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("mcpchat initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to add your API keys and MCP servers\n", configPath)
	fmt.Printf("2. Run 'mcpchat servers' to check server health\n")
	fmt.Printf("3. Run 'mcpchat chat' to start chatting\n")

	return nil
}
