package main

import (
	"os"
)

func main() {
	c := newCLI()
	err := c.rootCmd().Execute()
	// PersistentPostRunE is skipped when a command fails.
	_ = c.stop()
	if err != nil {
		os.Exit(1)
	}
}
