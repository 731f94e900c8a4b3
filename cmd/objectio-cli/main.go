// Command objectio-cli is an offline administration tool for volumes,
// disks, and snapshots: it operates directly on a node's -data-dir rather
// than over a control-plane RPC, since none is defined beyond the §6
// inter-node protocol and the §4.E.5 NBD data phase.
package main

import (
	"fmt"
	"os"

	"github.com/objectio/objectio/cli/commands"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "objectio-cli"
	app.Usage = "administer objectio volumes, disks, and snapshots"
	app.Version = "0.1.0"
	app.Flags = commands.GlobalFlags()
	app.Commands = commands.Commands()
	app.EnableBashCompletion = true

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "objectio-cli:", err)
		os.Exit(1)
	}
}
