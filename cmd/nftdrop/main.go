package main

import (
	"os"

	"github.com/dshills/nftdrop/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
