package main

import (
	"os"

	"heimdall/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
