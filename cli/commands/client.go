// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This file wires the CLI to the on-disk state a gateway or OSD node
// maintains under its data directory: there is no control-plane RPC for
// volume/disk lifecycle management (spec names only the inter-node §6
// protocol and the NBD §4.E.5 data phase), so the CLI is an offline admin
// tool operated against a stopped node's data directory, matching the
// teacher's client-talks-to-server split in spirit if not in transport.
package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/objectio/objectio/block"
	"github.com/objectio/objectio/cmn"
	"github.com/urfave/cli"
)

func parseStrFlag(c *cli.Context, f cli.StringFlag) string {
	if v := c.String(flagName(f)); v != "" {
		return v
	}
	return f.Value
}

func flagIsSet(c *cli.Context, f cli.Flag) bool {
	return c.Bool(flagName(f))
}

// flagName returns the primary (pre-comma) name of a flag, since
// cli.Flag.Name may carry shorthand aliases ("json,j").
func flagName(f cli.Flag) string {
	name := f.GetName()
	for i := 0; i < len(name); i++ {
		if name[i] == ',' {
			return name[:i]
		}
	}
	return name
}

// dataDir resolves the -data-dir global flag, set once on the App and
// read back from any subcommand's context.
func dataDir(c *cli.Context) string {
	if v := c.GlobalString(dataDirFlag.Name); v != "" {
		return v
	}
	return dataDirFlag.Value
}

// openVolumeManager opens the volume/chunk-location state under a
// gateway's -data-dir. Callers must Close() the returned manager.
func openVolumeManager(c *cli.Context) (*block.VolumeManager, error) {
	dir := dataDir(c)
	mapper := block.NewChunkMapper(uint64(cmn.DefaultConfig().ChunkSize))
	return block.NewVolumeManager(
		filepath.Join(dir, "volumes"),
		filepath.Join(dir, "chunks.db"),
		mapper,
	)
}

// resolveVolume looks a command-line reference up as a volume ID first,
// falling back to a volume name lookup.
func resolveVolume(vm *block.VolumeManager, ref string) (*block.Volume, error) {
	if vol, err := vm.GetVolume(ref); err == nil {
		return vol, nil
	}
	return vm.GetVolumeByName(ref)
}

func missingArgumentsError(c *cli.Context, what string) error {
	return fmt.Errorf("missing argument: %s (usage: %s %s)", what, c.Command.FullName(), c.Command.ArgsUsage)
}

// table renders rows to c.App.Writer: a tab-separated table honoring the
// no-headers flag, or a JSON array of {header[i]: row[i]} objects when
// -json is set.
func table(c *cli.Context, header []string, rows [][]string) {
	if flagIsSet(c, jsonFlag) {
		out := make([]map[string]string, 0, len(rows))
		for _, r := range rows {
			obj := make(map[string]string, len(header))
			for i, h := range header {
				if i < len(r) {
					obj[h] = r[i]
				}
			}
			out = append(out, obj)
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 2, 2, ' ', 0)
	if !flagIsSet(c, noHeaderFlag) {
		fmt.Fprintln(w, joinTab(header))
	}
	for _, r := range rows {
		fmt.Fprintln(w, joinTab(r))
	}
	w.Flush()
}

func joinTab(fields []string) string {
	s := ""
	for i, f := range fields {
		if i > 0 {
			s += "\t"
		}
		s += f
	}
	return s
}
