package nbd

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/objectio/objectio/block"
	"github.com/objectio/objectio/ec"
)

// Server is the NBD data-phase frontend for the block gateway (§4.E.5,
// ported from nbd.rs's NbdServer): one TCP listener, multiplexed by export
// name (= volume id), with one goroutine per accepted connection.
type Server struct {
	exports *exportRegistry
	cache   *block.WriteCache
	volumes *block.VolumeManager
	ecio    *block.ECIO
	backend ec.Backend
}

func NewServer(cache *block.WriteCache, volumes *block.VolumeManager, ecio *block.ECIO, backend ec.Backend) *Server {
	return &Server{
		exports: newExportRegistry(),
		cache:   cache,
		volumes: volumes,
		ecio:    ecio,
		backend: backend,
	}
}

// Register exposes volumeID as an NBD export.
func (s *Server) Register(volumeID string, sizeBytes uint64, readOnly bool) {
	s.exports.register(volumeID, sizeBytes, readOnly)
	glog.Infof("nbd: registered export %q (%d bytes)", volumeID, sizeBytes)
}

// Unregister removes volumeID's export; existing connections are unaffected.
func (s *Server) Unregister(volumeID string) {
	if s.exports.unregister(volumeID) {
		glog.Infof("nbd: unregistered export %q", volumeID)
	}
}

// ListAttachments returns registered exports, optionally filtered to one
// volume.
func (s *Server) ListAttachments(volumeIDFilter string) []Attachment {
	return s.exports.listAttachments(volumeIDFilter)
}

// Serve accepts connections on ln until it is closed, blocking the caller.
func (s *Server) Serve(ln net.Listener) error {
	glog.Infof("nbd: listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleClient(conn)
	}
}

func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr()
	glog.Infof("nbd: client %s connected", peer)

	if err := s.handshake(conn); err != nil {
		glog.Warningf("nbd: client %s handshake failed: %v", peer, err)
		return
	}

	volumeID, export, err := s.negotiateOptions(conn)
	if err != nil {
		glog.Warningf("nbd: client %s option negotiation failed: %v", peer, err)
		return
	}

	if err := s.dataPhase(conn, volumeID, export); err != nil && err != io.EOF {
		glog.Warningf("nbd: client %s error on export %q: %v", peer, volumeID, err)
	}
	glog.Infof("nbd: client %s disconnected from %q", peer, volumeID)
}

func (s *Server) handshake(conn net.Conn) error {
	if err := writeUint64(conn, magic); err != nil {
		return err
	}
	if err := writeUint64(conn, iHaveOpt); err != nil {
		return err
	}
	if err := writeUint16(conn, flagFixedNewstyle|flagNoZeroes); err != nil {
		return err
	}
	_, err := readUint32(conn) // client flags, unused
	return err
}

func (s *Server) negotiateOptions(conn net.Conn) (string, Export, error) {
	for {
		m, err := readUint64(conn)
		if err != nil {
			return "", Export{}, err
		}
		if m != iHaveOpt {
			return "", Export{}, fmt.Errorf("nbd: bad option magic %#x", m)
		}
		option, err := readUint32(conn)
		if err != nil {
			return "", Export{}, err
		}
		dataLen, err := readUint32(conn)
		if err != nil {
			return "", Export{}, err
		}
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(conn, data); err != nil {
			return "", Export{}, err
		}

		switch option {
		case optAbort:
			_ = s.sendOptionReply(conn, option, repAck, nil)
			return "", Export{}, fmt.Errorf("nbd: client sent NBD_OPT_ABORT")

		case optList:
			for _, name := range s.exports.names() {
				reply := make([]byte, 0, 4+len(name))
				reply = appendUint32(reply, uint32(len(name)))
				reply = append(reply, name...)
				if err := s.sendOptionReply(conn, option, repServer, reply); err != nil {
					return "", Export{}, err
				}
			}
			if err := s.sendOptionReply(conn, option, repAck, nil); err != nil {
				return "", Export{}, err
			}

		case optInfo, optGo:
			name, export, ok, err := s.parseInfoOrGo(conn, option, data)
			if err != nil {
				return "", Export{}, err
			}
			if !ok {
				continue
			}
			if option == optGo {
				return name, export, nil
			}

		case optExportName:
			name := string(data)
			export, ok := s.exports.get(name)
			if !ok {
				return "", Export{}, fmt.Errorf("nbd: export %q not found", name)
			}
			return name, export, nil

		default:
			if err := s.sendOptionReply(conn, option, repErrUnsup, []byte("unsupported")); err != nil {
				return "", Export{}, err
			}
		}
	}
}

// parseInfoOrGo handles NBD_OPT_INFO/NBD_OPT_GO: u32 name_len + name +
// u16 num_info_requests (ignored: we always send NBD_INFO_EXPORT only).
// ok=false means the option was replied to with an error and negotiation
// should continue reading the next option.
func (s *Server) parseInfoOrGo(conn net.Conn, option uint32, data []byte) (string, Export, bool, error) {
	if len(data) < 4 {
		return "", Export{}, false, s.sendOptionReply(conn, option, repErrUnsup, []byte("option data too short"))
	}
	nameLen := int(binary.BigEndian.Uint32(data[:4]))
	if len(data) < 4+nameLen {
		return "", Export{}, false, s.sendOptionReply(conn, option, repErrUnsup, []byte("name truncated"))
	}
	name := string(data[4 : 4+nameLen])

	export, ok := s.exports.get(name)
	if !ok {
		return "", Export{}, false, s.sendOptionReply(conn, option, repErrUnknown, []byte("export not found"))
	}

	info := make([]byte, 0, 12)
	info = appendUint16(info, infoExport)
	info = appendUint64(info, export.SizeBytes)
	flags := flagHasFlags | flagSendFlush | flagSendTrim
	if export.ReadOnly {
		flags |= flagReadOnly
	}
	info = appendUint16(info, flags)
	if err := s.sendOptionReply(conn, option, repInfo, info); err != nil {
		return "", Export{}, false, err
	}
	if err := s.sendOptionReply(conn, option, repAck, nil); err != nil {
		return "", Export{}, false, err
	}
	return name, export, true, nil
}

func (s *Server) sendOptionReply(conn net.Conn, option, replyType uint32, data []byte) error {
	if err := writeUint64(conn, optionReplyMagic); err != nil {
		return err
	}
	if err := writeUint32(conn, option); err != nil {
		return err
	}
	if err := writeUint32(conn, replyType); err != nil {
		return err
	}
	if err := writeUint32(conn, uint32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := conn.Write(data)
	return err
}

// dataPhase serves READ/WRITE/FLUSH/TRIM/DISC requests for one connection
// until DISC or an I/O error (§4.E.5).
func (s *Server) dataPhase(conn net.Conn, volumeID string, export Export) error {
	for {
		m, err := readUint32(conn)
		if err != nil {
			return err
		}
		if m != requestMagic {
			return fmt.Errorf("nbd: bad request magic %#x", m)
		}
		if _, err := readUint16(conn); err != nil { // flags, unused
			return err
		}
		cmd, err := readUint16(conn)
		if err != nil {
			return err
		}
		handle, err := readUint64(conn)
		if err != nil {
			return err
		}
		offset, err := readUint64(conn)
		if err != nil {
			return err
		}
		length, err := readUint32(conn)
		if err != nil {
			return err
		}

		switch cmd {
		case cmdRead:
			data, err := s.nbdRead(volumeID, offset, uint64(length))
			if err != nil {
				glog.Warningf("nbd: read error on %q: %v", volumeID, err)
				data = make([]byte, length)
			}
			if err := writeUint32(conn, replyMagic); err != nil {
				return err
			}
			if err := writeUint32(conn, errNone); err != nil {
				return err
			}
			if err := writeUint64(conn, handle); err != nil {
				return err
			}
			if _, err := conn.Write(data); err != nil {
				return err
			}

		case cmdWrite:
			data := make([]byte, length)
			if _, err := io.ReadFull(conn, data); err != nil {
				return err
			}
			if export.ReadOnly {
				if err := s.sendReply(conn, handle, errPerm); err != nil {
					return err
				}
				continue
			}
			code := errNone
			if err := s.cache.Write(volumeID, offset, data); err != nil {
				glog.Warningf("nbd: write cache error on %q: %v", volumeID, err)
				code = errIO
			}
			if err := s.sendReply(conn, handle, code); err != nil {
				return err
			}

		case cmdFlush:
			// Background flusher (§4.E.3) owns durable promotion; FLUSH
			// replies success immediately rather than blocking on it.
			if err := s.sendReply(conn, handle, errNone); err != nil {
				return err
			}

		case cmdTrim:
			zeros := make([]byte, length)
			_ = s.cache.Write(volumeID, offset, zeros)
			if err := s.sendReply(conn, handle, errNone); err != nil {
				return err
			}

		case cmdDisc:
			return nil

		default:
			glog.Warningf("nbd: unknown command %d on %q", cmd, volumeID)
			if err := s.sendReply(conn, handle, errInval); err != nil {
				return err
			}
		}
	}
}

func (s *Server) sendReply(conn net.Conn, handle uint64, errCode uint32) error {
	if err := writeUint32(conn, replyMagic); err != nil {
		return err
	}
	if err := writeUint32(conn, errCode); err != nil {
		return err
	}
	return writeUint64(conn, handle)
}

// nbdRead serves a READ from the write-back cache, falling back to the EC
// object path on a cache miss (sparse ranges that were never written read
// back as zeros). The requested range may span more than one chunk, so a
// miss is resolved one touched chunk at a time (§4.E.2).
func (s *Server) nbdRead(volumeID string, offset, length uint64) ([]byte, error) {
	if data, ok := s.cache.Read(volumeID, offset, length); ok {
		return data, nil
	}

	mapper := s.cache.ChunkMapper()
	chunkSize := mapper.ChunkSize()
	out := make([]byte, 0, length)
	for _, r := range mapper.ByteRangeToChunks(offset, length) {
		pieceOffset := uint64(r.ChunkID)*chunkSize + r.OffsetInChunk
		if piece, ok := s.cache.Read(volumeID, pieceOffset, r.Length); ok {
			out = append(out, piece...)
			continue
		}
		piece, err := s.readChunkRange(volumeID, r)
		if err != nil {
			return nil, err
		}
		out = append(out, piece...)
	}
	return out, nil
}

// readChunkRange resolves one chunk's slice of a cache-missed READ, fetching
// it from the EC object path (or zero-filling if the chunk was never
// written) and seeding the cache with the full chunk before slicing out the
// requested piece.
func (s *Server) readChunkRange(volumeID string, r block.ChunkRange) ([]byte, error) {
	chunkSize := s.cache.ChunkMapper().ChunkSize()

	ref, found, err := s.volumes.GetChunk(volumeID, r.ChunkID)
	if err != nil {
		return nil, err
	}

	var chunkData []byte
	if found {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		chunkData, err = s.ecio.ReadChunk(ctx, ref.ObjectKey, s.backend)
		if err != nil {
			return nil, err
		}
	} else {
		chunkData = make([]byte, chunkSize)
	}
	s.cache.AddClean(volumeID, r.ChunkID, chunkData)

	start := r.OffsetInChunk
	end := start + r.Length
	if end > uint64(len(chunkData)) {
		end = uint64(len(chunkData))
	}
	if start > end {
		start = end
	}
	return chunkData[start:end], nil
}
