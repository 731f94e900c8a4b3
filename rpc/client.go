package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/objectio/objectio/cmn"
)

// DefaultReadTimeout / DefaultWriteTimeout are the default wall-clock
// budgets for OSD shard reads/writes (§5 "Cancellation / timeouts").
// Client does not apply them itself: a call is bounded only by the
// deadline of the context passed to it.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Client is a single framed connection to one OSD.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

func newClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// call sends req under typ, waits for the matching reply type, and decodes
// it into resp. Serialized per connection: one in-flight call at a time,
// matching the teacher's single-stream-per-channel model.
func (c *Client) call(ctx context.Context, typ MsgType, req interface{}, replyType MsgType, resp interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}

	f, err := encodeFrame(typ, req)
	if err != nil {
		return err
	}
	if err := writeFrame(c.conn, f); err != nil {
		return err
	}

	reply, err := readFrame(c.conn)
	if err != nil {
		return cmn.NewTransientError(err, "read rpc reply")
	}
	if reply.typ != replyType && reply.typ != MsgError {
		return cmn.NewTransientError(nil, "unexpected reply type %d, wanted %d", reply.typ, replyType)
	}
	return decodeInto(reply, resp)
}

func (c *Client) GetPlacement(ctx context.Context, req GetPlacementRequest) (GetPlacementResponse, error) {
	var resp GetPlacementResponse
	err := c.call(ctx, MsgGetPlacement, req, MsgGetPlacementReply, &resp)
	return resp, err
}

func (c *Client) WriteShard(ctx context.Context, req WriteShardRequest) (WriteShardResponse, error) {
	var resp WriteShardResponse
	err := c.call(ctx, MsgWriteShard, req, MsgWriteShardReply, &resp)
	return resp, err
}

func (c *Client) ReadShard(ctx context.Context, req ReadShardRequest) (ReadShardResponse, error) {
	var resp ReadShardResponse
	err := c.call(ctx, MsgReadShard, req, MsgReadShardReply, &resp)
	return resp, err
}

func (c *Client) PutObjectMeta(ctx context.Context, req PutObjectMetaRequest) error {
	var resp PutObjectMetaResponse
	return c.call(ctx, MsgPutObjectMeta, req, MsgPutObjectMetaReply, &resp)
}

func (c *Client) GetObjectMeta(ctx context.Context, req GetObjectMetaRequest) (GetObjectMetaResponse, error) {
	var resp GetObjectMetaResponse
	err := c.call(ctx, MsgGetObjectMeta, req, MsgGetObjectMetaReply, &resp)
	return resp, err
}

func (c *Client) DeleteObjectMeta(ctx context.Context, req DeleteObjectMetaRequest) error {
	var resp DeleteObjectMetaResponse
	return c.call(ctx, MsgDeleteObjectMeta, req, MsgDeleteObjectMetaReply, &resp)
}

// poolEntry pairs a dialed client with the address it was dialed at, so a
// later connect to the same address under a different node id can reuse it.
type poolEntry struct {
	client  *Client
	address string
}

// Pool deduplicates OSD connections by both node id and address (§5 "The
// OSD connection pool deduplicates connections by both node id and
// address; concurrent connects to the same node race to populate, with
// the late arrival reusing the winner's channel"), ported from
// osd_pool.rs's OsdPool.
type Pool struct {
	mu     sync.Mutex
	byNode map[cmn.NodeId]*poolEntry
	byAddr map[string]*Client
	dialer net.Dialer
}

func NewPool() *Pool {
	return &Pool{
		byNode: make(map[cmn.NodeId]*poolEntry),
		byAddr: make(map[string]*Client),
		dialer: net.Dialer{Timeout: 5 * time.Second},
	}
}

// GetOrConnect returns the pooled client for nodeID, dialing address only
// if neither the node id nor the address has a live connection yet.
func (p *Pool) GetOrConnect(ctx context.Context, nodeID cmn.NodeId, address string) (*Client, error) {
	p.mu.Lock()
	if entry, ok := p.byNode[nodeID]; ok {
		p.mu.Unlock()
		return entry.client, nil
	}
	if existing, ok := p.byAddr[address]; ok {
		p.byNode[nodeID] = &poolEntry{client: existing, address: address}
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	conn, err := p.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, cmn.NewTransientError(err, "dial osd %s", address)
	}
	client := newClient(conn)

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another goroutine may have won the race; keep theirs, close ours.
	if existing, ok := p.byAddr[address]; ok {
		client.Close()
		p.byNode[nodeID] = &poolEntry{client: existing, address: address}
		return existing, nil
	}
	p.byAddr[address] = client
	p.byNode[nodeID] = &poolEntry{client: client, address: address}
	return client, nil
}

// GetClientForPlacement resolves a client for one resolved NodePlacement.
func (p *Pool) GetClientForPlacement(ctx context.Context, np NodePlacement) (*Client, error) {
	return p.GetOrConnect(ctx, np.NodeID, np.NodeAddress)
}

// Close tears down every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.byAddr {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.byNode = make(map[cmn.NodeId]*poolEntry)
	p.byAddr = make(map[string]*Client)
	return firstErr
}
