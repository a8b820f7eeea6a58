// Command pipeline runs the lead scoring data pipeline: one-shot from the
// command line, or on a schedule behind an HTTP API with "serve".
package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd := NewRootCommand(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
