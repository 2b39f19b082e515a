// Package memory is an in-process transport: the master and its workers are
// goroutines exchanging messages over channels.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/refrantz/paralellMandelbrot/pkg/types"
)

// Network connects one master to any number of worker links.
type Network struct {
	ready    chan types.WorkerID
	results  chan *types.ChunkResult
	failures chan error

	mu        sync.RWMutex
	mailboxes map[types.WorkerID]chan *types.Reply
}

// NewNetwork creates a network. buffer sizes the shared ready and result
// queues; a pool size is a good value.
func NewNetwork(buffer int) *Network {
	if buffer < 0 {
		buffer = 0
	}
	return &Network{
		ready:     make(chan types.WorkerID, buffer),
		results:   make(chan *types.ChunkResult, buffer),
		failures:  make(chan error),
		mailboxes: make(map[types.WorkerID]chan *types.Reply),
	}
}

// Ready implements master.Transport.
func (n *Network) Ready() <-chan types.WorkerID { return n.ready }

// Results implements master.Transport.
func (n *Network) Results() <-chan *types.ChunkResult { return n.results }

// Failures implements master.Transport. Channels cannot fail, so nothing is
// ever sent on it.
func (n *Network) Failures() <-chan error { return n.failures }

// Reply implements master.Transport.
func (n *Network) Reply(ctx context.Context, id types.WorkerID, reply *types.Reply) error {
	n.mu.RLock()
	mailbox, ok := n.mailboxes[id]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no link for worker %s", id)
	}
	select {
	case mailbox <- reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Link creates the worker-side endpoint for id. Creating a second link for
// the same id is an error.
func (n *Network) Link(id types.WorkerID) (*Link, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.mailboxes[id]; exists {
		return nil, fmt.Errorf("worker %s already linked", id)
	}
	mailbox := make(chan *types.Reply, 1)
	n.mailboxes[id] = mailbox
	return &Link{id: id, network: n, mailbox: mailbox}, nil
}

// Link is a worker's endpoint on a Network.
type Link struct {
	id      types.WorkerID
	network *Network
	mailbox chan *types.Reply
}

// ID implements worker.Link.
func (l *Link) ID() types.WorkerID { return l.id }

// SendReady implements worker.Link.
func (l *Link) SendReady(ctx context.Context) error {
	select {
	case l.network.ready <- l.id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AwaitReply implements worker.Link.
func (l *Link) AwaitReply(ctx context.Context) (*types.Reply, error) {
	select {
	case reply := <-l.mailbox:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendResult implements worker.Link. The payload is copied, so the caller may
// reuse res.Data as soon as SendResult returns.
func (l *Link) SendResult(ctx context.Context, res *types.ChunkResult) error {
	msg := *res
	msg.Data = append([]int32(nil), res.Data...)
	select {
	case l.network.results <- &msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
