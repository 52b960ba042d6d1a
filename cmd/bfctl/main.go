// Command bfctl runs BF.* commands against a snapshot file.
package main

import (
	"os"

	"github.com/jcalabro/growbloom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
