package disk

import (
	"encoding/binary"

	"github.com/objectio/objectio/cmn"
)

const (
	// HeaderMagic identifies a BlockHeader ("BLKH").
	HeaderMagic uint32 = 0x424C4B48
	// FooterMagic identifies a BlockFooter ("BLKF").
	FooterMagic uint32 = 0x424C4B46

	// HeaderSize is the fixed BlockHeader size (§3).
	HeaderSize = 64
	// FooterSize is the fixed BlockFooter size (§3).
	FooterSize = 32

	// headerChecksumOffset is how many header bytes the CRC32C covers:
	// magic(4)+sequence(8)+object_id(16)+object_offset(8)+data_size(4)+flags(4) = 44.
	headerChecksumOffset = 44
)

// BlockHeader sits at the start of every on-disk data block (§3).
type BlockHeader struct {
	Magic        uint32
	Sequence     uint64
	ObjectID     cmn.ObjectId
	ObjectOffset uint64
	DataSize     uint32
	Flags        uint32
	Checksum     uint32
}

// NewBlockHeader builds a header and computes its checksum.
func NewBlockHeader(sequence uint64, objectID cmn.ObjectId, objectOffset uint64, dataSize uint32) BlockHeader {
	h := BlockHeader{
		Magic:        HeaderMagic,
		Sequence:     sequence,
		ObjectID:     objectID,
		ObjectOffset: objectOffset,
		DataSize:     dataSize,
	}
	h.Checksum = h.computeChecksum()
	return h
}

func (h BlockHeader) ToBytes() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint64(buf[4:12], h.Sequence)
	copy(buf[12:28], h.ObjectID[:])
	binary.LittleEndian.PutUint64(buf[28:36], h.ObjectOffset)
	binary.LittleEndian.PutUint32(buf[36:40], h.DataSize)
	binary.LittleEndian.PutUint32(buf[40:44], h.Flags)
	binary.LittleEndian.PutUint32(buf[44:48], h.Checksum)
	return buf
}

func BlockHeaderFromBytes(data []byte) (BlockHeader, error) {
	var h BlockHeader
	if len(data) < HeaderSize {
		return h, cmn.NewIntegrityError("block header too small: %d bytes", len(data))
	}
	h.Magic = binary.LittleEndian.Uint32(data[0:4])
	if h.Magic != HeaderMagic {
		return h, cmn.NewIntegrityError("invalid block header magic")
	}
	h.Sequence = binary.LittleEndian.Uint64(data[4:12])
	copy(h.ObjectID[:], data[12:28])
	h.ObjectOffset = binary.LittleEndian.Uint64(data[28:36])
	h.DataSize = binary.LittleEndian.Uint32(data[36:40])
	h.Flags = binary.LittleEndian.Uint32(data[40:44])
	h.Checksum = binary.LittleEndian.Uint32(data[44:48])

	if h.computeChecksum() != h.Checksum {
		return h, cmn.NewIntegrityError("block header checksum mismatch")
	}
	return h, nil
}

func (h BlockHeader) computeChecksum() uint32 {
	buf := h.ToBytes()
	return cmn.CRC32C(buf[:headerChecksumOffset])
}

// BlockFooter closes out a data block, carrying the payload checksum and a
// sequence number that must match the header's (§3 invariant).
type BlockFooter struct {
	DataChecksum uint32
	Sequence     uint64
	Magic        uint32
}

func NewBlockFooter(dataChecksum uint32, sequence uint64) BlockFooter {
	return BlockFooter{DataChecksum: dataChecksum, Sequence: sequence, Magic: FooterMagic}
}

func (f BlockFooter) ToBytes() [FooterSize]byte {
	var buf [FooterSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], f.DataChecksum)
	binary.LittleEndian.PutUint64(buf[4:12], f.Sequence)
	// bytes 12:FooterSize-4 are zero padding
	binary.LittleEndian.PutUint32(buf[FooterSize-4:FooterSize], f.Magic)
	return buf
}

func BlockFooterFromBytes(data []byte) (BlockFooter, error) {
	var f BlockFooter
	if len(data) < FooterSize {
		return f, cmn.NewIntegrityError("block footer too small: %d bytes", len(data))
	}
	f.DataChecksum = binary.LittleEndian.Uint32(data[0:4])
	f.Sequence = binary.LittleEndian.Uint64(data[4:12])
	f.Magic = binary.LittleEndian.Uint32(data[FooterSize-4 : FooterSize])
	if f.Magic != FooterMagic {
		return f, cmn.NewIntegrityError("invalid block footer magic")
	}
	return f, nil
}
