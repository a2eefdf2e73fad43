package main

import (
	"log/slog"
	"os"

	"github.com/USA-RedDragon/divi-gateway/cmd"
)

// Overridden at release time with ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	rootCmd := cmd.NewCommand(version, commit)
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Exited with error", "error", err.Error())
		os.Exit(1)
	}
}
