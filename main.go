package main

import (
	"os"

	"github.com/go2ctl/go2ctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
