// Package meta implements the OSD metadata store (§4.B): a write-ahead log,
// an in-memory ordered index, an adaptive replacement cache, and periodic
// snapshotting with WAL truncation.
package meta

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/objectio/objectio/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WALMagic identifies a WAL record ("MWAL").
var WALMagic = [4]byte{'M', 'W', 'A', 'L'}

// recordHeaderSize is magic(4) + lsn(8) + length(4).
const recordHeaderSize = 16

// OpKind distinguishes the operations a WAL record can carry (§4.B).
type OpKind uint8

const (
	OpPut OpKind = iota
	OpDelete
	OpBatch
)

// Op is one write-ahead-logged mutation. Batches group several ops as one
// atomic unit and do not nest (§4.B).
type Op struct {
	Kind  OpKind `json:"kind"`
	Key   []byte `json:"key,omitempty"`
	Value []byte `json:"value,omitempty"`
	Ops   []Op   `json:"ops,omitempty"`
}

// WAL is the append-only record stream backing the metadata store. Record
// format: `[magic(4) | lsn(8) | length(4) | payload | crc32c(4)]` (§4.B).
type WAL struct {
	mu       sync.Mutex
	f        *os.File
	path     string
	syncMode cmn.WALSyncMode
	nextLSN  uint64
}

// OpenWAL opens (creating if absent) the WAL file at path, scanning it to
// recover the highest contiguous LSN and discarding any trailing garbage
// after the last valid record (§4.B).
func OpenWAL(path string, mode cmn.WALSyncMode) (*WAL, uint64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, 0, cmn.WrapIntegrityError(err, "open wal %s", path)
	}
	lastLSN, validEnd, err := scanWAL(f)
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if err := f.Truncate(validEnd); err != nil {
		f.Close()
		return nil, 0, cmn.WrapIntegrityError(err, "truncate wal tail garbage")
	}
	if _, err := f.Seek(validEnd, io.SeekStart); err != nil {
		f.Close()
		return nil, 0, cmn.WrapIntegrityError(err, "seek wal to tail")
	}
	w := &WAL{f: f, path: path, syncMode: mode, nextLSN: lastLSN + 1}
	return w, lastLSN, nil
}

// scanWAL reads every well-formed record from the start, returning the
// highest LSN seen and the byte offset immediately after the last valid
// record. A corrupt or short trailing record is treated as truncation, not
// an error (§4.B "any trailing garbage after the last valid record ... is
// treated as truncation and ignored").
func scanWAL(f *os.File) (lastLSN uint64, validEnd int64, err error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, cmn.WrapIntegrityError(err, "seek wal start")
	}
	var offset int64
	header := make([]byte, recordHeaderSize)
	for {
		n, rerr := io.ReadFull(f, header)
		if rerr != nil || n < recordHeaderSize {
			break
		}
		var magic [4]byte
		copy(magic[:], header[0:4])
		if magic != WALMagic {
			break
		}
		lsn := binary.LittleEndian.Uint64(header[4:12])
		length := binary.LittleEndian.Uint32(header[12:16])

		payload := make([]byte, length)
		if _, rerr := io.ReadFull(f, payload); rerr != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, rerr := io.ReadFull(f, crcBuf); rerr != nil {
			break
		}
		wantCRC := binary.LittleEndian.Uint32(crcBuf)
		h := cmn.NewCRC32C()
		h.Write(header)
		h.Write(payload)
		if h.Sum32() != wantCRC {
			break
		}

		offset += recordHeaderSize + int64(length) + 4
		lastLSN = lsn
	}
	return lastLSN, offset, nil
}

// Append serializes op, assigns the next LSN, and writes it to the WAL,
// fsyncing per the configured sync mode.
func (w *WAL) Append(op Op) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(op)
}

// AppendBatch wraps ops in a single OpBatch record so they are replayed
// atomically (§4.B "batches do not nest").
func (w *WAL) AppendBatch(ops []Op) (uint64, error) {
	return w.Append(Op{Kind: OpBatch, Ops: ops})
}

func (w *WAL) appendLocked(op Op) (uint64, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return 0, cmn.NewConfigError("marshal wal op: %v", err)
	}
	lsn := w.nextLSN

	header := make([]byte, recordHeaderSize)
	copy(header[0:4], WALMagic[:])
	binary.LittleEndian.PutUint64(header[4:12], lsn)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	h := cmn.NewCRC32C()
	h.Write(header)
	h.Write(payload)

	record := make([]byte, 0, len(header)+len(payload)+4)
	record = append(record, header...)
	record = append(record, payload...)
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], h.Sum32())
	record = append(record, crcBuf[:]...)

	if _, err := w.f.Write(record); err != nil {
		return 0, cmn.NewTransientError(err, "wal append failed")
	}
	if w.syncMode == cmn.WALSyncPerWrite {
		if err := w.f.Sync(); err != nil {
			return 0, cmn.NewTransientError(err, "wal fsync failed")
		}
	}
	w.nextLSN++
	return lsn, nil
}

// Sync forces a fsync, used by batched/on-commit sync modes.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		return cmn.NewTransientError(err, "wal fsync failed")
	}
	return nil
}

// Replay reads every record from the start and invokes cb for each op with
// LSN >= fromLSN, in WAL order, flattening one level of batch so cb always
// sees individual Put/Delete ops (§4.B "replay ... applying each record
// (including batches in order)").
func (w *WAL) Replay(fromLSN uint64, cb func(lsn uint64, op Op) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return cmn.WrapIntegrityError(err, "seek wal for replay")
	}
	defer w.f.Seek(0, io.SeekEnd)

	header := make([]byte, recordHeaderSize)
	for {
		if _, err := io.ReadFull(w.f, header); err != nil {
			break
		}
		length := binary.LittleEndian.Uint32(header[12:16])
		lsn := binary.LittleEndian.Uint64(header[4:12])
		payload := make([]byte, length)
		if _, err := io.ReadFull(w.f, payload); err != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(w.f, crcBuf); err != nil {
			break
		}
		if lsn < fromLSN {
			continue
		}
		var op Op
		if err := json.Unmarshal(payload, &op); err != nil {
			return cmn.NewIntegrityError("corrupt wal record at lsn %d: %v", lsn, err)
		}
		if err := applyFlattened(lsn, op, cb); err != nil {
			return err
		}
	}
	return nil
}

func applyFlattened(lsn uint64, op Op, cb func(uint64, Op) error) error {
	if op.Kind == OpBatch {
		for _, sub := range op.Ops {
			if err := cb(lsn, sub); err != nil {
				return err
			}
		}
		return nil
	}
	return cb(lsn, op)
}

// TruncateBefore compacts the WAL so it contains only records with
// lsn >= snapshotLSN: it replays the tail into a fresh file, then atomically
// renames it over the original (§4.B).
func (w *WAL) TruncateBefore(snapshotLSN uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return cmn.WrapIntegrityError(err, "create wal truncation tmp file")
	}

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return cmn.WrapIntegrityError(err, "seek wal for truncation")
	}
	header := make([]byte, recordHeaderSize)
	for {
		if _, err := io.ReadFull(w.f, header); err != nil {
			break
		}
		length := binary.LittleEndian.Uint32(header[12:16])
		lsn := binary.LittleEndian.Uint64(header[4:12])
		payload := make([]byte, length)
		if _, err := io.ReadFull(w.f, payload); err != nil {
			break
		}
		crcBuf := make([]byte, 4)
		if _, err := io.ReadFull(w.f, crcBuf); err != nil {
			break
		}
		if lsn < snapshotLSN {
			continue
		}
		record := make([]byte, 0, len(header)+len(payload)+len(crcBuf))
		record = append(record, header...)
		record = append(record, payload...)
		record = append(record, crcBuf...)
		if _, err := tmp.Write(record); err != nil {
			tmp.Close()
			return cmn.WrapIntegrityError(err, "write wal truncation tmp file")
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return cmn.WrapIntegrityError(err, "sync wal truncation tmp file")
	}
	tmp.Close()
	w.f.Close()

	if err := os.Rename(tmpPath, w.path); err != nil {
		return cmn.WrapIntegrityError(err, "rename wal truncation tmp file")
	}

	f, err := os.OpenFile(w.path, os.O_RDWR, 0644)
	if err != nil {
		return cmn.WrapIntegrityError(err, "reopen wal after truncation")
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return cmn.WrapIntegrityError(err, "seek reopened wal to end")
	}
	w.f = f
	return nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error { return w.f.Close() }

func walDir(dataDir string) string { return filepath.Join(dataDir, "meta") }
