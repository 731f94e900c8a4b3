package commands

import "github.com/urfave/cli"

// Commands returns the full command tree for the operator CLI.
func Commands() []cli.Command {
	var all []cli.Command
	all = append(all, showCmds...)
	all = append(all, createCmds...)
	all = append(all, removeCmds...)
	all = append(all, resizeCmds...)
	all = append(all, cloneCmds...)
	all = append(all, restoreCmds...)
	return all
}

// GlobalFlags returns flags shared by every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{dataDirFlag}
}
