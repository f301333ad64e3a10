// Command fleet-alerts evaluates truck telemetry against alert rules and
// publishes alert events.
package main

import (
	"fmt"
	"os"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
