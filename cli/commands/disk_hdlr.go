// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This file implements the `create disk` command: standalone raw-disk
// image provisioning, the same operation objectio-osd performs on startup
// for specs it hasn't seen before, exposed here so an operator can
// pre-provision disks without starting the node.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/objectio/objectio/disk"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"
)

// createDiskHandler provisions a raw-disk image, zeroing its bitmap region
// in 1 MiB chunks (disk.InitWithProgress); with -verbose it reports that
// zeroing progress on an mpb bar, since the bitmap region of a large disk
// can take a noticeable while to zero.
func createDiskHandler(c *cli.Context) error {
	if c.NArg() < 2 {
		return missingArgumentsError(c, "NAME SIZE")
	}
	name := c.Args().Get(0)
	size, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %v", c.Args().Get(1), err)
	}

	dir := dataDir(c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, name+".img")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("disk %s already exists at %s", name, path)
	}

	var (
		p       *mpb.Progress
		bar     *mpb.Bar
		barText = fmt.Sprintf("initializing disk %s", name)
	)
	var progress func(zeroed, total uint64)
	barDone := false
	if flagIsSet(c, verboseFlag) {
		p = mpb.New(mpb.WithWidth(progressBarWidth))
		bar = p.AddBar(0,
			mpb.PrependDecorators(
				decor.Name(barText, decor.WC{W: len(barText) + 1, C: decor.DidentRight}),
				decor.CountersKibiByte("% .2f / % .2f", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WCSyncWidth)))
		started := false
		var lastZeroed uint64
		progress = func(zeroed, total uint64) {
			if !started {
				bar.SetTotal(int64(total), false)
				started = true
			}
			bar.IncrBy(int(zeroed - lastZeroed))
			lastZeroed = zeroed
			if zeroed == total {
				bar.SetTotal(int64(total), true) // completes the bar
				barDone = true
			}
		}
	}

	blockSize := uint32(c.Uint(blockSizeFlag.Name))
	d, err := disk.InitWithProgress(path, size, blockSize, progress)
	if err != nil {
		return err
	}
	defer d.Close()
	if bar != nil && !barDone {
		bar.SetTotal(0, true) // nothing to zero (zero-size bitmap region): complete the bar
	}
	if p != nil {
		p.Wait()
	}

	fmt.Fprintf(c.App.Writer, "disk %s initialized at %s, %d bytes\n", name, path, size)
	return nil
}
