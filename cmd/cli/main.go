package main

import (
	"os"

	"github.com/mberzins/envault/internal/client/cli"
)

// set via -ldflags "-X main.buildVersion=..."
var buildVersion = "N/A"

func main() {
	os.Exit(cli.Execute(buildVersion))
}
