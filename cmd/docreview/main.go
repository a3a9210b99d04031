package main

import (
	"os"

	"github.com/dshills/docreview/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
