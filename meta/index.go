package meta

import (
	"bytes"
	"sort"
	"sync"
)

// Entry is a versioned value in the in-memory index.
type Entry struct {
	Value []byte
	LSN   uint64
}

// Index is the in-memory ordered map backing point lookups and prefix
// scans (§4.B). There is no third-party in-memory ordered-map library in
// the reference pack (bbolt/scribble are both on-disk); a sorted-slice
// index with binary search is the direct, idiomatic replacement for
// `original_source`'s in-memory BTreeMap-backed index.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
	keys    []string // kept sorted
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Get returns the entry for key, if present.
func (ix *Index) Get(key []byte) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[string(key)]
	return e, ok
}

// Put inserts or overwrites key's entry, keeping the sorted key list
// consistent.
func (ix *Index) Put(key []byte, value []byte, lsn uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k := string(key)
	if _, exists := ix.entries[k]; !exists {
		ix.insertSorted(k)
	}
	ix.entries[k] = Entry{Value: value, LSN: lsn}
}

// Delete removes key's entry (a tombstone apply per §4.B: deletes remove
// keys from the served state).
func (ix *Index) Delete(key []byte) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	k := string(key)
	if _, exists := ix.entries[k]; !exists {
		return
	}
	delete(ix.entries, k)
	ix.removeSorted(k)
}

func (ix *Index) insertSorted(k string) {
	i := sort.SearchStrings(ix.keys, k)
	ix.keys = append(ix.keys, "")
	copy(ix.keys[i+1:], ix.keys[i:])
	ix.keys[i] = k
}

func (ix *Index) removeSorted(k string) {
	i := sort.SearchStrings(ix.keys, k)
	if i < len(ix.keys) && ix.keys[i] == k {
		ix.keys = append(ix.keys[:i], ix.keys[i+1:]...)
	}
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.keys)
}

// PrefixScan returns every entry whose key starts with prefix, in
// ascending key order, regardless of insertion order (§4.B, §8). The upper
// bound is prefix with its last byte incremented; if the prefix ends in
// 0xFF, the scan is unbounded above (§4.B "fall-through to unbounded when
// the prefix ends in 0xFF").
func (ix *Index) PrefixScan(prefix []byte) []KV {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	lo := sort.SearchStrings(ix.keys, string(prefix))
	upper, unbounded := incrementPrefix(prefix)

	var out []KV
	for i := lo; i < len(ix.keys); i++ {
		k := ix.keys[i]
		if !unbounded && k >= string(upper) {
			break
		}
		if !bytes.HasPrefix([]byte(k), prefix) {
			if unbounded {
				continue
			}
			break
		}
		e := ix.entries[k]
		out = append(out, KV{Key: []byte(k), Value: e.Value, LSN: e.LSN})
	}
	return out
}

// KV is a scan result pair.
type KV struct {
	Key   []byte
	Value []byte
	LSN   uint64
}

// incrementPrefix computes the exclusive upper bound for a prefix scan by
// incrementing the last byte that isn't already 0xFF, dropping any
// trailing 0xFF bytes first. Returns unbounded=true if prefix is all 0xFF
// (or empty), meaning there is no finite upper bound.
func incrementPrefix(prefix []byte) (upper []byte, unbounded bool) {
	upper = append([]byte(nil), prefix...)
	for len(upper) > 0 && upper[len(upper)-1] == 0xFF {
		upper = upper[:len(upper)-1]
	}
	if len(upper) == 0 {
		return nil, true
	}
	upper[len(upper)-1]++
	return upper, false
}
