package main

import (
	"os"

	"aquanet/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
