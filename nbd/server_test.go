package nbd

import (
	"bytes"
	"io"
	"net"
	"os"

	"github.com/objectio/objectio/block"
	"github.com/objectio/objectio/ec"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// testServer builds a Server backed by a fresh write-back cache and volume
// manager, with one 16 MiB volume ("disk-a") registered and listening on a
// loopback port. The mapper's chunk size is set by the caller so tests can
// exercise chunk-boundary behavior precisely.
func testServer(chunkSize uint64) (srv *Server, target, dir string) {
	mapper := block.NewChunkMapper(chunkSize)
	cfg := block.DefaultCacheConfig()
	cfg.JournalPath = ""
	cache, err := block.NewWriteCache(mapper, cfg)
	Expect(err).NotTo(HaveOccurred())

	dir, err = os.MkdirTemp("", "nbd-server-test")
	Expect(err).NotTo(HaveOccurred())

	vm, err := block.NewVolumeManager(dir+"/meta", dir+"/chunks.db", mapper)
	Expect(err).NotTo(HaveOccurred())

	backend, err := ec.NewBackend(ec.MDSConfig(2, 1))
	Expect(err).NotTo(HaveOccurred())

	srv = NewServer(cache, vm, nil, backend)
	vol, err := vm.CreateVolume("disk-a", 16*1024*1024, "default")
	Expect(err).NotTo(HaveOccurred())
	cache.InitVolume(vol.VolumeID)
	srv.Register(vol.VolumeID, vol.SizeBytes, false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go srv.Serve(ln)

	return srv, vol.VolumeID + "@" + ln.Addr().String(), dir
}

// dial connects, performs the handshake, and negotiates NBD_OPT_GO for
// volumeID, returning the live connection positioned at the data phase.
func dial(addr, volumeID string) net.Conn {
	conn, err := net.Dial("tcp", addr)
	Expect(err).NotTo(HaveOccurred())

	m, err := readUint64(conn)
	Expect(err).NotTo(HaveOccurred())
	Expect(m).To(Equal(magic))
	m2, err := readUint64(conn)
	Expect(err).NotTo(HaveOccurred())
	Expect(m2).To(Equal(iHaveOpt))
	_, err = readUint16(conn) // handshake flags
	Expect(err).NotTo(HaveOccurred())
	Expect(writeUint32(conn, 0)).To(Succeed()) // client flags

	// NBD_OPT_GO: u32 name_len + name + u16 num_info_requests(0)
	data := make([]byte, 0, 4+len(volumeID)+2)
	data = appendUint32(data, uint32(len(volumeID)))
	data = append(data, volumeID...)
	data = appendUint16(data, 0)

	Expect(writeUint64(conn, iHaveOpt)).To(Succeed())
	Expect(writeUint32(conn, optGo)).To(Succeed())
	Expect(writeUint32(conn, uint32(len(data)))).To(Succeed())
	_, err = conn.Write(data)
	Expect(err).NotTo(HaveOccurred())

	// Expect NBD_REP_INFO then NBD_REP_ACK.
	readOptionReply(conn)
	readOptionReply(conn)

	return conn
}

func readOptionReply(conn net.Conn) (replyType uint32, data []byte) {
	m, err := readUint64(conn)
	Expect(err).NotTo(HaveOccurred())
	Expect(m).To(Equal(optionReplyMagic))
	_, err = readUint32(conn) // echoed option
	Expect(err).NotTo(HaveOccurred())
	replyType, err = readUint32(conn)
	Expect(err).NotTo(HaveOccurred())
	n, err := readUint32(conn)
	Expect(err).NotTo(HaveOccurred())
	data = make([]byte, n)
	_, err = io.ReadFull(conn, data)
	Expect(err).NotTo(HaveOccurred())
	return replyType, data
}

func sendRequest(conn net.Conn, cmd uint16, handle, offset uint64, length uint32, payload []byte) {
	Expect(writeUint32(conn, requestMagic)).To(Succeed())
	Expect(writeUint16(conn, 0)).To(Succeed())
	Expect(writeUint16(conn, cmd)).To(Succeed())
	Expect(writeUint64(conn, handle)).To(Succeed())
	Expect(writeUint64(conn, offset)).To(Succeed())
	Expect(writeUint32(conn, length)).To(Succeed())
	if len(payload) > 0 {
		_, err := conn.Write(payload)
		Expect(err).NotTo(HaveOccurred())
	}
}

func readReply(conn net.Conn, dataLen int) (errCode uint32, handle uint64, data []byte) {
	m, err := readUint32(conn)
	Expect(err).NotTo(HaveOccurred())
	Expect(m).To(Equal(replyMagic))
	errCode, err = readUint32(conn)
	Expect(err).NotTo(HaveOccurred())
	handle, err = readUint64(conn)
	Expect(err).NotTo(HaveOccurred())
	if dataLen > 0 {
		data = make([]byte, dataLen)
		_, err = io.ReadFull(conn, data)
		Expect(err).NotTo(HaveOccurred())
	}
	return errCode, handle, data
}

func splitTarget(target string) [2]string {
	for i := 0; i < len(target); i++ {
		if target[i] == '@' {
			return [2]string{target[:i], target[i+1:]}
		}
	}
	return [2]string{target, ""}
}

var _ = Describe("NBD data phase", func() {
	var dir string

	AfterEach(func() {
		if dir != "" {
			os.RemoveAll(dir)
		}
	})

	It("reads back exactly what was written", func() {
		_, target, d := testServer(1024 * 1024)
		dir = d
		parts := splitTarget(target)
		conn := dial(parts[1], parts[0])
		defer conn.Close()

		payload := bytes.Repeat([]byte{0x5a}, 4096)
		sendRequest(conn, cmdWrite, 1, 0, uint32(len(payload)), payload)
		errCode, handle, _ := readReply(conn, 0)
		Expect(errCode).To(Equal(errNone))
		Expect(handle).To(BeEquivalentTo(1))

		sendRequest(conn, cmdRead, 2, 0, uint32(len(payload)), nil)
		errCode, handle, data := readReply(conn, len(payload))
		Expect(errCode).To(Equal(errNone))
		Expect(handle).To(BeEquivalentTo(2))
		Expect(data).To(Equal(payload))
	})

	It("returns zeros for a sparse range that was never written", func() {
		_, target, d := testServer(1024 * 1024)
		dir = d
		parts := splitTarget(target)
		conn := dial(parts[1], parts[0])
		defer conn.Close()

		sendRequest(conn, cmdRead, 1, 1024*1024, 4096, nil)
		errCode, _, data := readReply(conn, 4096)
		Expect(errCode).To(Equal(errNone))
		Expect(data).To(Equal(make([]byte, 4096)))
	})

	It("replies to FLUSH and accepts a clean DISC", func() {
		_, target, d := testServer(1024 * 1024)
		dir = d
		parts := splitTarget(target)
		conn := dial(parts[1], parts[0])
		defer conn.Close()

		sendRequest(conn, cmdFlush, 1, 0, 0, nil)
		errCode, _, _ := readReply(conn, 0)
		Expect(errCode).To(Equal(errNone))

		sendRequest(conn, cmdDisc, 2, 0, 0, nil)
	})

	Describe("chunk-boundary reads", func() {
		It("returns the full promised length on a cache miss spanning two chunks", func() {
			// A small chunk size makes it easy to pick an offset/length
			// that straddles a chunk boundary.
			const chunkSize = 64 * 1024
			_, target, d := testServer(chunkSize)
			dir = d
			parts := splitTarget(target)
			conn := dial(parts[1], parts[0])
			defer conn.Close()

			By("reading a range that starts 1KiB before the chunk boundary and runs 8KiB past it")
			offset := uint64(chunkSize - 1024)
			length := uint32(8192)
			sendRequest(conn, cmdRead, 1, offset, length, nil)
			errCode, handle, data := readReply(conn, int(length))

			Expect(errCode).To(Equal(errNone))
			Expect(handle).To(BeEquivalentTo(1))
			Expect(data).To(HaveLen(int(length)), "reply body must match the length already promised in the reply header")
			Expect(data).To(Equal(make([]byte, length)), "neither chunk was ever written, so the whole span reads back as zero")
		})

		It("stitches a write that lands entirely in the second chunk into a cross-boundary read", func() {
			const chunkSize = 64 * 1024
			_, target, d := testServer(chunkSize)
			dir = d
			parts := splitTarget(target)
			conn := dial(parts[1], parts[0])
			defer conn.Close()

			By("writing 2KiB starting 1KiB into the second chunk")
			writeOffset := uint64(chunkSize + 1024)
			payload := bytes.Repeat([]byte{0x7e}, 2048)
			sendRequest(conn, cmdWrite, 1, writeOffset, uint32(len(payload)), payload)
			errCode, _, _ := readReply(conn, 0)
			Expect(errCode).To(Equal(errNone))

			By("reading a range that starts 1KiB before the chunk boundary and covers the written bytes")
			readOffset := uint64(chunkSize - 1024)
			length := uint32(8192)
			sendRequest(conn, cmdRead, 2, readOffset, length, nil)
			errCode, _, data := readReply(conn, int(length))
			Expect(errCode).To(Equal(errNone))
			Expect(data).To(HaveLen(int(length)))

			want := make([]byte, length)
			copy(want[writeOffset-readOffset:], payload)
			Expect(data).To(Equal(want))
		})
	})
})
