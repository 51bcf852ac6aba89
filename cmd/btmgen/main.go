package main

import (
	"os"

	"github.com/solatis/btmgen/cmd/btmgen/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
