// Package main implements the blindtaint CLI.
// It provides the client, auditor and decrypt steps of a blind taint audit
// of PHP projects, plus plaintext scanning and configuration commands.
package main

import (
	"os"

	"github.com/l3aro/blindtaint/cmd/blindtaint/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (built " + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`blindtaint version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
