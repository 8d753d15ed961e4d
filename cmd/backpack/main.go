package main

import (
	"os"

	"github.com/karloscodes/backpack/cli"
)

func main() {
	os.Exit(cli.Execute(cli.New("backpack")))
}
