// Package main provides the entry point for the sage CLI.
package main

import (
	"fmt"
	"os"

	"github.com/sageruntime/sage/cmd/sage/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
