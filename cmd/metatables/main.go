// Command metatables serves and queries metadata tables of catalog tables.
package main

import (
	"fmt"
	"os"

	"github.com/arkilian/metatables/internal/cli"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := cli.Execute(fmt.Sprintf("%s (commit: %s)", version, commit)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
