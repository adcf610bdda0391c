package commands

import (
	"fmt"
	"runtime"

	"github.com/mcpchat/mcpchat/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of mcpchat",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mcpchat %s %s/%s\n", version.Version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
