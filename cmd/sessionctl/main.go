package main

import (
	"os"

	"github.com/jrsteele09/go-session-client/cmd/sessionctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
