package main

import (
	"os"

	"github.com/wesleyorama2/swarm/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
