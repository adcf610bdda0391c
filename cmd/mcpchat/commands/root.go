package commands

import (
	"github.com/mcpchat/mcpchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	logLevelOverride string
	configOverride   string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcpchat",
		Short: "mcpchat - MCP-backed chat client",
		Long:  `mcpchat launches MCP tool servers and drives LLM conversations that can call their tools.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(config.DefaultConfig(), logLevelOverride, false)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride, cmd.Name() == "chat")
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&configOverride, "config", "", "Path to config file (default ~/.mcpchat/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewChatCmd(),
		NewAskCmd(),
		NewServeCmd(),
		NewServersCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func loadConfig() (*config.Config, error) {
	if configOverride != "" {
		return config.LoadFrom(configOverride)
	}
	return config.Load()
}
