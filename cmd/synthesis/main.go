// Package main provides the entry point for the synthesis CLI.
package main

import (
	"os"

	"github.com/synthesis-kb/synthesis/cmd/synthesis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
