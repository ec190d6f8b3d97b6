// Package main is the entry point for the sissync command-line tool.
package main

import (
	"os"

	"github.com/timmy/sissync/cmd/sissync/commands"
	"github.com/timmy/sissync/internal/logger"
)

func main() {
	logger.SetDefaultLogger(logger.NewFromEnv("sissync-cli"))
	defer logger.Sync()

	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
