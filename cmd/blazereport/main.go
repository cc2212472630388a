// Package main is the entry point for the blazereport CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/blazereport/cmd/blazereport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
