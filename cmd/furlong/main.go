package main

import (
	"os"

	"github.com/tfkr-ae/furlong/cmd/furlong/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
