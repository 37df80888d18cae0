package main

import (
	"os"

	"github.com/nixxel-company-limited/escpos-print-agent/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
