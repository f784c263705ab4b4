package main

import (
	"os"

	"github.com/mahir/coursebot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
