package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewAskCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), sessionID, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "cli", "Session id for conversation history")

	return cmd
}

func runAsk(ctx context.Context, sessionID, message string) error {
	if ctx == nil {
		ctx = context.Background()
	}

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

	reply, err := svc.Send(ctx, sessionID, message)
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	return nil
}
