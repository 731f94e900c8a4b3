package rpc

import (
	"context"
	"net"

	"github.com/golang/glog"
	"github.com/objectio/objectio/cmn"
)

// Handler implements the OSD side of every inter-node message (§6). One
// Handler instance is shared by every accepted connection.
type Handler interface {
	GetPlacement(ctx context.Context, req GetPlacementRequest) (GetPlacementResponse, error)
	WriteShard(ctx context.Context, req WriteShardRequest) (WriteShardResponse, error)
	ReadShard(ctx context.Context, req ReadShardRequest) (ReadShardResponse, error)
	PutObjectMeta(ctx context.Context, req PutObjectMetaRequest) error
	GetObjectMeta(ctx context.Context, req GetObjectMetaRequest) (GetObjectMetaResponse, error)
	DeleteObjectMeta(ctx context.Context, req DeleteObjectMetaRequest) error
}

// Serve accepts connections on ln and dispatches frames to handler until ln
// is closed. Each connection is served on its own goroutine with a single
// in-flight request at a time, mirroring the client's one-call-per-round
// model.
func Serve(ln net.Listener, handler Handler) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(conn, handler)
	}
}

func serveConn(conn net.Conn, handler Handler) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		reply, err := dispatch(context.Background(), handler, req)
		if err != nil {
			reply = errorFrame(err)
		}
		if err := writeFrame(conn, reply); err != nil {
			glog.Warningf("rpc: write reply to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func errorFrame(err error) frame {
	kind := "unknown"
	if te, ok := err.(cmn.TypedError); ok {
		kind = te.Kind().String()
	}
	f, encErr := encodeFrame(MsgError, ErrorResponse{Kind: kind, Message: err.Error()})
	if encErr != nil {
		return frame{typ: MsgError}
	}
	return f
}

func dispatch(ctx context.Context, h Handler, req frame) (frame, error) {
	switch req.typ {
	case MsgGetPlacement:
		var in GetPlacementRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		out, err := h.GetPlacement(ctx, in)
		if err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgGetPlacementReply, out)

	case MsgWriteShard:
		var in WriteShardRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		out, err := h.WriteShard(ctx, in)
		if err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgWriteShardReply, out)

	case MsgReadShard:
		var in ReadShardRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		out, err := h.ReadShard(ctx, in)
		if err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgReadShardReply, out)

	case MsgPutObjectMeta:
		var in PutObjectMetaRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		if err := h.PutObjectMeta(ctx, in); err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgPutObjectMetaReply, PutObjectMetaResponse{})

	case MsgGetObjectMeta:
		var in GetObjectMetaRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		out, err := h.GetObjectMeta(ctx, in)
		if err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgGetObjectMetaReply, out)

	case MsgDeleteObjectMeta:
		var in DeleteObjectMetaRequest
		if err := decodeInto(req, &in); err != nil {
			return frame{}, err
		}
		if err := h.DeleteObjectMeta(ctx, in); err != nil {
			return frame{}, err
		}
		return encodeFrame(MsgDeleteObjectMetaReply, DeleteObjectMetaResponse{})

	default:
		return frame{}, cmn.NewConfigError("unknown rpc message type %d", req.typ)
	}
}
