package main

import (
	"os"

	"github.com/roach88/procsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
