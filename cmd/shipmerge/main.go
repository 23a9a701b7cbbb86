// Package main provides the shipmerge command.
package main

import (
	"os"

	"github.com/nexgen-logistics/shipmerge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
