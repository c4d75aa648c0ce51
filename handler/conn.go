package handler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"get.pme.sh/wsjrpc/jrpc"
	"get.pme.sh/wsjrpc/transport"
	"get.pme.sh/wsjrpc/xlog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// conn is the per connection state. Every outbound message goes through out and is
// written by a single goroutine, so frames never interleave.
type conn struct {
	h      *Handler
	t      transport.Transport
	logger *xlog.Logger
	out    chan transport.Message

	state    atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
	errOnce  sync.Once
	err      error
	eof      atomic.Bool // stream ended, queued messages may still be written

	mu         sync.Mutex
	inflight   int
	ackPending bool
}

func newConn(h *Handler, t transport.Transport, logger *xlog.Logger) *conn {
	return &conn{
		h:      h,
		t:      t,
		logger: logger,
		out:    make(chan transport.Message, h.queueSize),
		done:   make(chan struct{}),
	}
}

func (c *conn) State() State { return State(c.state.Load()) }

// transition moves to s unless a terminal state was already reached.
func (c *conn) transition(s State) bool {
	for {
		cur := State(c.state.Load())
		if cur.Terminal() {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(s)) {
			c.logger.Debug().Stringer("from", cur).Stringer("to", s).Msg("Connection state changed")
			if s.Terminal() {
				c.doneOnce.Do(func() { close(c.done) })
			}
			return true
		}
	}
}

// fail records the first error, moves to Failed and closes the transport to unblock
// whichever loop is still running.
func (c *conn) fail(err error) {
	c.errOnce.Do(func() {
		c.err = err
		c.transition(Failed)
		c.t.Close()
	})
}

// enqueue hands m to the writer. It blocks while the queue is full and is a no-op
// once the connection has terminated.
func (c *conn) enqueue(m transport.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *conn) reply(resp *jrpc.Response) {
	data, err := resp.Marshal()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode response")
		return
	}
	c.enqueue(transport.TextMessage(data))
}

func (c *conn) run(ctx context.Context) error {
	// Not every transport honors ctx while blocked in Receive.
	stop := context.AfterFunc(ctx, func() { c.t.Close() })
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.writeLoop(gctx); err != nil {
			c.fail(err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := c.readLoop(gctx); err != nil {
			c.fail(err)
			return err
		}
		return nil
	})
	g.Wait()
	c.t.Close()

	c.logger.Debug().Stringer("state", c.State()).Err(c.err).Msg("Connection finished")
	return c.err
}

// halted reports whether the writer must stop without writing anything more.
func (c *conn) halted() bool {
	select {
	case <-c.done:
		return !c.eof.Load()
	default:
		return false
	}
}

func (c *conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-c.done:
			if c.eof.Load() {
				c.flush(ctx)
			}
			return nil
		case m := <-c.out:
			if c.halted() {
				return nil
			}
			if err := c.t.Send(ctx, m); err != nil {
				if c.eof.Load() {
					return nil
				}
				return errors.Wrapf(err, "write %s", m.Op)
			}
		}
	}
}

// flush writes what was queued before the stream ended, such as the close acknowledgement.
func (c *conn) flush(ctx context.Context) {
	for {
		select {
		case m := <-c.out:
			if c.t.Send(ctx, m) != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		m, err := c.t.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.eof.Store(true)
				c.transition(Closed)
				return nil
			}
			return errors.Wrap(err, "read")
		}

		switch m.Op {
		case transport.Text, transport.Binary:
			c.handleData(ctx, m.Payload)
		case transport.Ping:
			c.enqueue(transport.PongMessage(m.Payload))
		case transport.Pong:
		case transport.Close:
			if c.State() == Closing {
				c.transition(Closed)
				return nil
			}
			c.transition(Closing)
			c.acknowledgeClose()
		}
	}
}

func (c *conn) handleData(ctx context.Context, payload []byte) {
	c.logger.Debug().Bytes("msg", payload).Msg("Received message")

	req, resp := jrpc.Parse(payload)
	switch {
	case resp != nil:
		c.reply(resp)
	case req != nil:
		c.dispatch(ctx, req)
	default:
		c.logger.Debug().Msg("Dropped message")
	}
}

// acknowledgeClose queues the close acknowledgement once every dispatched request has
// replied. No frame may follow a close on a websocket, so replies go first.
func (c *conn) acknowledgeClose() {
	c.mu.Lock()
	now := c.inflight == 0
	c.ackPending = !now
	c.mu.Unlock()
	if now {
		c.enqueue(transport.CloseMessage(nil))
	}
}

func (c *conn) settled() {
	c.mu.Lock()
	c.inflight--
	ack := c.inflight == 0 && c.ackPending
	if ack {
		c.ackPending = false
	}
	c.mu.Unlock()
	if ack {
		c.enqueue(transport.CloseMessage(nil))
	}
}

// dispatch runs the request on its own goroutine. The call outlives the connection: its
// context is detached from cancellation and a late response is simply not sent.
func (c *conn) dispatch(ctx context.Context, req *jrpc.Request) {
	ctx = context.WithoutCancel(ctx)
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
	go func() {
		defer c.settled()
		if resp := c.h.call(ctx, req); resp != nil {
			c.reply(resp)
		}
	}()
}
