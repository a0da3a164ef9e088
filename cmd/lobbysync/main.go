// Command lobbysync runs a replicated social feed replica and its scenario
// harness.
package main

import (
	"os"

	"github.com/roach88/lobbysync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
