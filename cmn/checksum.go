package cmn

import "hash/crc32"

// castagnoliTable is the CRC32C polynomial table used everywhere an on-disk
// or on-wire checksum is mentioned: superblock, block header/footer, WAL
// records, snapshot files, journal records (§3, §4.B, §6).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the Castagnoli CRC32 checksum of b.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// NewCRC32C returns a running CRC32C hash, for checksumming data assembled
// incrementally (e.g. header bytes followed by payload).
func NewCRC32C() *crc32Hash {
	return &crc32Hash{crc: 0}
}

type crc32Hash struct {
	crc uint32
}

func (h *crc32Hash) Write(b []byte) {
	h.crc = crc32.Update(h.crc, castagnoliTable, b)
}

func (h *crc32Hash) Sum32() uint32 { return h.crc }
