// Package commands provides the set of CLI commands used to administer
// volumes, disks, and snapshots.
// This specific file contains common constants and variables used in other files.
package commands

import "github.com/urfave/cli"

const (
	// Commands (top-level) - preferably verbs
	commandShow   = "show"
	commandCreate = "create"
	commandRemove = "rm"
	commandResize  = "resize"
	commandClone   = "clone"
	commandRestore = "restore"

	// Subcommands - preferably nouns
	subcmdVolume   = "volume"
	subcmdDisk     = "disk"
	subcmdSnapshot = "snapshot"

	// Show subcommands
	subcmdShowVolume   = subcmdVolume
	subcmdShowDisk     = subcmdDisk
	subcmdShowSnapshot = subcmdSnapshot

	// Create subcommands
	subcmdCreateVolume   = subcmdVolume
	subcmdCreateDisk     = subcmdDisk
	subcmdCreateSnapshot = subcmdSnapshot

	// Remove subcommands
	subcmdRemoveVolume   = subcmdVolume
	subcmdRemoveSnapshot = subcmdSnapshot
)

// Argument placeholders in help messages
// Name format: *Argument
// progressBarWidth is the terminal column width reserved for mpb bars on
// long-running commands (bulk disk init, snapshot restore).
const progressBarWidth = 64

const (
	noArguments = " "

	volumeArgument         = "VOLUME_ID|NAME"
	optionalVolumeArgument = "[VOLUME_ID|NAME]"
	volumeNameSizeArgument = "NAME SIZE"
	volumeNewSizeArgument  = volumeArgument + " NEW_SIZE"

	snapshotArgument      = "SNAPSHOT_ID"
	volumeSnapshotNameArg = volumeArgument + " NAME"
	snapshotNewNameArg    = snapshotArgument + " NAME"
	volumeSnapshotIDArg   = volumeArgument + " " + snapshotArgument

	diskSpecArgument = "NAME SIZE"
)

// Flags
var (
	jsonFlag     = cli.BoolFlag{Name: "json,j", Usage: "json input/output"}
	noHeaderFlag = cli.BoolFlag{Name: "no-headers,H", Usage: "display tables without headers"}
	forceFlag    = cli.BoolFlag{Name: "force,f", Usage: "force the operation even if the entity is in use"}

	poolFlag = cli.StringFlag{Name: "pool", Usage: "storage pool the volume is provisioned from", Value: "default"}

	blockSizeFlag = cli.UintFlag{Name: "block-size", Usage: "raw-disk block size in bytes", Value: uint(0)}

	dataDirFlag = cli.StringFlag{Name: "data-dir", Usage: "node data directory to operate against", EnvVar: "OBJECTIO_DATA_DIR", Value: "/var/lib/objectio"}

	verboseFlag = cli.BoolFlag{Name: "verbose,v", Usage: "print a progress bar for long-running operations"}

	showCmdsFlags = map[string][]cli.Flag{
		subcmdShowVolume:   {jsonFlag, noHeaderFlag},
		subcmdShowDisk:     {jsonFlag, noHeaderFlag},
		subcmdShowSnapshot: {jsonFlag, noHeaderFlag},
	}

	removeCmdsFlags = map[string][]cli.Flag{
		subcmdRemoveVolume:   {forceFlag},
		subcmdRemoveSnapshot: {},
	}
)
