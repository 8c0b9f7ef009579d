package main

import (
	"os"

	"github.com/autotech-nz/paymark-reporter/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
