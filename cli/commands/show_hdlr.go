// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This file contains implementation of the top-level `show` command.
package commands

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/objectio/objectio/block"
	"github.com/objectio/objectio/disk"
	"github.com/urfave/cli"
)

var showCmds = []cli.Command{
	{
		Name:  commandShow,
		Usage: "show volumes, disks, and snapshots",
		Subcommands: []cli.Command{
			{
				Name:      subcmdShowVolume,
				Usage:     "show volume details",
				ArgsUsage: optionalVolumeArgument,
				Flags:     showCmdsFlags[subcmdShowVolume],
				Action:    showVolumeHandler,
			},
			{
				Name:      subcmdShowSnapshot,
				Usage:     "show snapshots, optionally filtered by volume",
				ArgsUsage: optionalVolumeArgument,
				Flags:     showCmdsFlags[subcmdShowSnapshot],
				Action:    showSnapshotHandler,
			},
			{
				Name:      subcmdShowDisk,
				Usage:     "show raw-disk images under a node's data directory",
				ArgsUsage: noArguments,
				Flags:     showCmdsFlags[subcmdShowDisk],
				Action:    showDiskHandler,
			},
		},
	},
}

func showVolumeHandler(c *cli.Context) error {
	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	var volumes []*volumeRow
	if ref := c.Args().First(); ref != "" {
		vol, err := resolveVolume(vm, ref)
		if err != nil {
			return err
		}
		volumes = []*volumeRow{rowForVolume(vol)}
	} else {
		for _, vol := range vm.ListVolumes() {
			volumes = append(volumes, rowForVolume(vol))
		}
	}

	rows := make([][]string, 0, len(volumes))
	for _, v := range volumes {
		rows = append(rows, []string{v.id, v.name, v.pool, v.state, v.size, v.used, v.created})
	}
	table(c, []string{"VOLUME ID", "NAME", "POOL", "STATE", "SIZE", "USED", "CREATED"}, rows)
	return nil
}

type volumeRow struct {
	id, name, pool, state, size, used, created string
}

func rowForVolume(vol *block.Volume) *volumeRow {
	return &volumeRow{
		id:      vol.VolumeID,
		name:    vol.Name,
		pool:    vol.Pool,
		state:   vol.State.String(),
		size:    strconv.FormatUint(vol.SizeBytes, 10),
		used:    strconv.FormatUint(vol.UsedBytes, 10),
		created: time.Unix(vol.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}

func showSnapshotHandler(c *cli.Context) error {
	vm, err := openVolumeManager(c)
	if err != nil {
		return err
	}
	defer vm.Close()

	var volumeIDs []string
	if ref := c.Args().First(); ref != "" {
		vol, err := resolveVolume(vm, ref)
		if err != nil {
			return err
		}
		volumeIDs = []string{vol.VolumeID}
	} else {
		for _, vol := range vm.ListVolumes() {
			volumeIDs = append(volumeIDs, vol.VolumeID)
		}
	}

	var rows [][]string
	for _, volID := range volumeIDs {
		for _, snap := range vm.ListSnapshots(volID) {
			rows = append(rows, []string{
				snap.SnapshotID,
				snap.VolumeID,
				snap.Name,
				strconv.FormatUint(snap.SizeBytes, 10),
				strconv.FormatUint(snap.UniqueBytes, 10),
				time.Unix(snap.CreatedAt, 0).UTC().Format(time.RFC3339),
			})
		}
	}
	table(c, []string{"SNAPSHOT ID", "VOLUME ID", "NAME", "SIZE", "UNIQUE", "CREATED"}, rows)
	return nil
}

// showDiskHandler lists every `*.img` disk file under -data-dir, opening
// each just long enough to read its superblock.
func showDiskHandler(c *cli.Context) error {
	dir := dataDir(c)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".img") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		d, err := disk.Open(path)
		if err != nil {
			rows = append(rows, []string{strings.TrimSuffix(e.Name(), ".img"), "-", "-", "-", "error: " + err.Error()})
			continue
		}
		sb := d.Superblock()
		rows = append(rows, []string{
			sb.DiskID.String(),
			strings.TrimSuffix(e.Name(), ".img"),
			strconv.FormatUint(sb.DiskSize, 10),
			strconv.FormatUint((sb.TotalBlocks-sb.FreeBlocks)*uint64(sb.BlockSize), 10),
			strconv.FormatUint(uint64(sb.BlockSize), 10),
		})
		d.Close()
	}
	table(c, []string{"DISK ID", "NAME", "SIZE", "USED", "BLOCK SIZE"}, rows)
	return nil
}
