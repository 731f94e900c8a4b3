package rpc

import (
	"encoding/binary"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/objectio/objectio/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxFrameSize bounds a single frame's payload, guarding against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxFrameSize = 128 * 1024 * 1024 // 128 MiB, above the largest shard

// frame on the wire is [u32 length][u8 msgType][payload], length covering
// only the payload (§6 "length-prefixed binary framed transport").
type frame struct {
	typ     MsgType
	payload []byte
}

func writeFrame(w io.Writer, f frame) error {
	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(f.payload)))
	header[4] = byte(f.typ)
	if _, err := w.Write(header); err != nil {
		return cmn.NewTransientError(err, "write frame header")
	}
	if len(f.payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.payload); err != nil {
		return cmn.NewTransientError(err, "write frame payload")
	}
	return nil
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	length := binary.BigEndian.Uint32(header[0:4])
	if length > MaxFrameSize {
		return frame{}, cmn.NewIntegrityError("frame length %d exceeds max %d", length, MaxFrameSize)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return frame{}, cmn.NewTransientError(err, "read frame payload")
		}
	}
	return frame{typ: MsgType(header[4]), payload: payload}, nil
}

func encodeFrame(typ MsgType, v interface{}) (frame, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return frame{}, cmn.NewConfigError("marshal rpc payload: %v", err)
	}
	return frame{typ: typ, payload: payload}, nil
}

func decodeInto(f frame, v interface{}) error {
	if f.typ == MsgError {
		var errResp ErrorResponse
		if err := json.Unmarshal(f.payload, &errResp); err != nil {
			return cmn.NewTransientError(err, "decode rpc error response")
		}
		return cmn.NewTransientError(nil, "osd error (%s): %s", errResp.Kind, errResp.Message)
	}
	if len(f.payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.payload, v); err != nil {
		return cmn.NewTransientError(err, "decode rpc payload")
	}
	return nil
}
