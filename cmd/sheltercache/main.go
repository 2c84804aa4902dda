package main

import (
	"os"

	"github.com/dshills/sheltercache/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
