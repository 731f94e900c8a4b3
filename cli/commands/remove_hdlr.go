// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This specific file handles the CLI commands that remove entities.
package commands

import (
	"fmt"

	"github.com/urfave/cli"
)

var removeCmds = []cli.Command{
	{
		Name:  commandRemove,
		Usage: "remove a volume or snapshot",
		Subcommands: []cli.Command{
			{
				Name:      subcmdRemoveVolume,
				Usage:     "remove a volume",
				ArgsUsage: volumeArgument,
				Flags:     removeCmdsFlags[subcmdRemoveVolume],
				Action:    removeVolumeHandler,
			},
			{
				Name:      subcmdRemoveSnapshot,
				Usage:     "remove a snapshot",
				ArgsUsage: snapshotArgument,
				Flags:     removeCmdsFlags[subcmdRemoveSnapshot],
				Action:    removeSnapshotHandler,
			},
		},
	},
}

func removeVolumeHandler(c *cli.Context) error {
	ref := c.Args().First()
	if ref == "" {
		return missingArgumentsError(c, "volume ID or name")
	}

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	vol, err := resolveVolume(vm, ref)
	if err != nil {
		return err
	}
	if err := vm.DeleteVolume(vol.VolumeID, flagIsSet(c, forceFlag)); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "volume %s removed\n", vol.VolumeID)
	return nil
}

func removeSnapshotHandler(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return missingArgumentsError(c, "snapshot ID")
	}

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	if err := vm.DeleteSnapshot(id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "snapshot %s removed\n", id)
	return nil
}
