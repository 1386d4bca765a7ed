// gg is the Gas Gauge CLI for monitoring AI coding assistant quotas.
package main

import (
	"os"

	"github.com/steveyegge/gasgauge/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
