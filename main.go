package main

import (
	"os"

	"github.com/yoanbernabeu/codemarks/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
