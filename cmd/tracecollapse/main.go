// Package main provides the entry point for the tracecollapse CLI.
package main

import (
	"os"

	"tracecollapse/cmd/tracecollapse/cmd"
)

func main() {
	if err := cmd.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
