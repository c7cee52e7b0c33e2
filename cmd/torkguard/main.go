package main

import (
	"os"

	"github.com/torkjacobs/tork-guardian/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
