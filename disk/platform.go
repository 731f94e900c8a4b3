package disk

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fNoCache is macOS's F_NOCACHE fcntl command (no exported constant in
// golang.org/x/sys/unix for darwin at the time this was written).
const fNoCache = 48

// openDirect opens path with flag, adding O_DIRECT on Linux. On macOS,
// O_DIRECT does not exist; F_NOCACHE is applied via fcntl after open,
// mirroring raw_io.rs's platform split.
func openDirect(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|directIOFlag(), 0644)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "darwin" {
		if _, err := unix.FcntlInt(f.Fd(), fNoCache, 1); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// uintptrOf returns the starting address of a byte slice's backing array,
// used only to compute alignment padding for AlignedBuffer.
func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
