package main

import (
	"os"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
