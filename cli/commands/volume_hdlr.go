// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This file implements the `create volume`, `resize`, `clone`, and
// `restore` commands.
package commands

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
)

var createCmds = []cli.Command{
	{
		Name:  commandCreate,
		Usage: "create a volume, disk, or snapshot",
		Subcommands: []cli.Command{
			{
				Name:      subcmdCreateVolume,
				Usage:     "create a new volume",
				ArgsUsage: volumeNameSizeArgument,
				Flags:     []cli.Flag{poolFlag},
				Action:    createVolumeHandler,
			},
			{
				Name:      subcmdCreateDisk,
				Usage:     "initialize a new raw-disk image under -data-dir",
				ArgsUsage: diskSpecArgument,
				Flags:     []cli.Flag{blockSizeFlag, verboseFlag},
				Action:    createDiskHandler,
			},
			{
				Name:      subcmdCreateSnapshot,
				Usage:     "create a point-in-time snapshot of a volume",
				ArgsUsage: volumeSnapshotNameArg,
				Action:    createSnapshotHandler,
			},
		},
	},
}

var resizeCmds = []cli.Command{
	{
		Name:      commandResize,
		Usage:     "grow a volume's logical size",
		ArgsUsage: volumeNewSizeArgument,
		Action:    resizeVolumeHandler,
	},
}

var cloneCmds = []cli.Command{
	{
		Name:      commandClone,
		Usage:     "create a new volume pre-populated from a snapshot",
		ArgsUsage: snapshotNewNameArg,
		Flags:     []cli.Flag{poolFlag},
		Action:    cloneVolumeHandler,
	},
}

var restoreCmds = []cli.Command{
	{
		Name:      commandRestore,
		Usage:     "restore a volume's chunk map in place from one of its snapshots",
		ArgsUsage: volumeSnapshotIDArg,
		Flags:     []cli.Flag{verboseFlag},
		Action:    restoreVolumeHandler,
	},
}

func createVolumeHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "NAME SIZE")
	}
	name := c.Args().Get(0)
	size, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %v", c.Args().Get(1), err)
	}

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	vol, err := vm.CreateVolume(name, size, parseStrFlag(c, poolFlag))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "volume %s (%s) created, %d bytes\n", vol.VolumeID, vol.Name, vol.SizeBytes)
	return nil
}

func resizeVolumeHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "VOLUME_ID|NAME NEW_SIZE")
	}
	ref := c.Args().Get(0)
	size, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %v", c.Args().Get(1), err)
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
	vol, err = vm.ResizeVolume(vol.VolumeID, size)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "volume %s resized to %d bytes\n", vol.VolumeID, vol.SizeBytes)
	return nil
}

func createSnapshotHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "VOLUME_ID|NAME NAME")
	}
	ref := c.Args().Get(0)
	name := c.Args().Get(1)

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	vol, err := resolveVolume(vm, ref)
	if err != nil {
		return err
	}
	snap, err := vm.CreateSnapshot(vol.VolumeID, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "snapshot %s (%s) created from volume %s\n", snap.SnapshotID, snap.Name, vol.VolumeID)
	return nil
}

// restoreVolumeHandler rolls a volume's chunk map back to a snapshot in
// place, chunk by chunk; with -verbose it reports progress on an mpb bar
// since a volume with many allocated chunks can take a while.
func restoreVolumeHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "VOLUME_ID|NAME SNAPSHOT_ID")
	}
	ref := c.Args().Get(0)
	snapshotID := c.Args().Get(1)

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	vol, err := resolveVolume(vm, ref)
	if err != nil {
		return err
	}

	var (
		p       *mpb.Progress
		bar     *mpb.Bar
		barText = fmt.Sprintf("restoring %s from snapshot %s", vol.VolumeID, snapshotID)
	)
	progress := func(done, total int) {}
	barDone := false
	if flagIsSet(c, verboseFlag) {
		p = mpb.New(mpb.WithWidth(progressBarWidth))
		bar = p.AddBar(0,
			mpb.PrependDecorators(
				decor.Name(barText, decor.WC{W: len(barText) + 1, C: decor.DidentRight}),
				decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)))
		started := false
		lastDone := 0
		progress = func(done, total int) {
			if !started {
				bar.SetTotal(int64(total), false)
				started = true
			}
			bar.IncrBy(done - lastDone)
			lastDone = done
			if done == total {
				bar.SetTotal(int64(total), true) // completes the bar
				barDone = true
			}
		}
	}

	if err := vm.RestoreSnapshot(vol.VolumeID, snapshotID, progress); err != nil {
		return err
	}
	if bar != nil && !barDone {
		bar.SetTotal(0, true) // empty snapshot: nothing to restore, complete the bar
	}
	if p != nil {
		p.Wait()
	}

	fmt.Fprintf(c.App.Writer, "volume %s restored from snapshot %s\n", vol.VolumeID, snapshotID)
	return nil
}

func cloneVolumeHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "SNAPSHOT_ID NAME")
	}
	snapshotID := c.Args().Get(0)
	name := c.Args().Get(1)

	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	vol, err := vm.CloneFromSnapshot(snapshotID, name, parseStrFlag(c, poolFlag))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "volume %s (%s) cloned from snapshot %s\n", vol.VolumeID, vol.Name, snapshotID)
	return nil
}
