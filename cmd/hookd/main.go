// Package main provides the entry point for the hook daemon CLI.
package main

import (
	"fmt"
	"os"

	"github.com/marveldaemon/mhd/cmd/hookd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
