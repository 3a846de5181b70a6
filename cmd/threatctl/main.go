package main

import (
	"os"

	"github.com/bryanwahyu/threat-analyzer/internal/cli"
)

// set via ldflags during build
var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}
