// Command ownerloop runs a simulated single-threaded tick loop that other
// goroutines feed through an owner-bound executor.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "ownerloop",
		Usage: "drive a tick loop owned by one goroutine from concurrent producers",
		Commands: []*cli.Command{
			runCommand(),
			configCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
