package main

import (
	"os"

	"github.com/openline-hq/caseguard/cmd/caseguard/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
