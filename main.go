package main

import (
	"os"

	"github.com/errm/queuestrap/cmd"
)

func main() {
	if err := cmd.New().Execute(); err != nil {
		os.Exit(1)
	}
}
