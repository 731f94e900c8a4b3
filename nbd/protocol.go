// Package nbd implements a Network Block Device newstyle v2 server exposing
// block volumes over the NBD wire protocol (§4.E.5), multiplexed by export
// name (= volume id) on a single TCP listener.
package nbd

const (
	magic            uint64 = 0x4e42444d41474943 // "NBDMAGIC"
	iHaveOpt         uint64 = 0x49484156454f5054 // "IHAVEOPT"
	optionReplyMagic uint64 = 0x0003e889045565a9
)

// Request/reply magics (§4.E.5): requests carry 0x25609513, replies
// 0x67446698.
const (
	requestMagic uint32 = 0x25609513
	replyMagic   uint32 = 0x67446698
)

// Handshake flags.
const (
	flagFixedNewstyle uint16 = 0x0001
	flagNoZeroes      uint16 = 0x0002
)

// Option IDs negotiated before the data phase.
const (
	optExportName uint32 = 1
	optAbort      uint32 = 2
	optList       uint32 = 3
	optInfo       uint32 = 6
	optGo         uint32 = 7
)

// Option reply types.
const (
	repAck        uint32 = 1
	repServer     uint32 = 2
	repInfo       uint32 = 3
	repErrUnsup   uint32 = 0x80000001
	repErrUnknown uint32 = 0x80000006
)

// Transmission flags sent in an NBD_INFO_EXPORT record.
const (
	flagHasFlags  uint16 = 0x0001
	flagReadOnly  uint16 = 0x0002
	flagSendFlush uint16 = 0x0004
	flagSendTrim  uint16 = 0x0008
)

const infoExport uint16 = 0

// Data-phase commands.
const (
	cmdRead  uint16 = 0
	cmdWrite uint16 = 1
	cmdDisc  uint16 = 2
	cmdFlush uint16 = 3
	cmdTrim  uint16 = 4
)

// Reply error codes (errno values the protocol expects on the wire).
const (
	errNone  uint32 = 0
	errPerm  uint32 = 1
	errIO    uint32 = 5
	errInval uint32 = 22
)
