package main

import (
	"os"

	"github.com/wonny/moves/backend/cmd/moves/commands"
)

// main is the entry point for the moves CLI
// ⭐ single CLI entry point: go run ./cmd/moves [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
