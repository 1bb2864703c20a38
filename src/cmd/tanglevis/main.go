package main

import (
	"os"

	"github.com/tanglevis/tanglevis/src/cmd/tanglevis/command"
)

func main() {
	if err := command.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
