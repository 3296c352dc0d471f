package main

import (
	"os"

	"github.com/variantly/variantly/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
