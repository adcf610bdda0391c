package main

import (
	"fmt"
	"os"

	"github.com/mcpchat/mcpchat/cmd/mcpchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
