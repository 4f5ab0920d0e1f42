package main

import (
	"os"

	"github.com/museumlab/dwelltrack/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
