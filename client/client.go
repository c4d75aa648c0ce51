// Package client implements the calling side of a JSON-RPC connection.
package client

import (
	"cmp"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"get.pme.sh/wsjrpc/jrpc"
	"get.pme.sh/wsjrpc/retry"
	"get.pme.sh/wsjrpc/revision"
	"get.pme.sh/wsjrpc/transport"
	"get.pme.sh/wsjrpc/xlog"

	"github.com/pkg/errors"
)

var (
	ErrClientClosed      = errors.New("jrpc: client closed")
	errUnsupportedScheme = errors.New("jrpc: unsupported scheme")
)

// CloseTimeout bounds how long Close waits for the peer to acknowledge the close frame.
var CloseTimeout = 5 * time.Second

// Client issues calls over a transport and matches responses by id. Ping frames from the
// peer are answered, requests from the peer are ignored.
type Client struct {
	t      transport.Transport
	closer io.Closer
	seq    atomic.Uint64

	wmu sync.Mutex

	elock   sync.Mutex
	pending map[uint64]chan *jrpc.Response
	err     error
	closing atomic.Bool
	done    chan struct{}
}

// New starts reading from t.
func New(t transport.Transport) *Client {
	c := &Client{
		t:       t,
		pending: make(map[uint64]chan *jrpc.Response),
		done:    make(chan struct{}),
	}
	go c.input()
	return c
}

// Dial connects to a ws:// or wss:// endpoint, or to a tcp://host:port yamux listener.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	switch u.Scheme {
	case "ws", "wss":
		header := http.Header{"User-Agent": {revision.UserAgent()}}
		ws, err := transport.Dial(ctx, rawURL, header)
		if err != nil {
			return nil, err
		}
		return New(ws), nil
	case "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		mux, err := transport.DialMux(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		stream, err := mux.Open()
		if err != nil {
			mux.Close()
			return nil, err
		}
		c := New(stream)
		c.closer = mux
		return c, nil
	}
	return nil, errors.Wrapf(errUnsupportedScheme, "%q", u.Scheme)
}

// DialRetry is Dial retried under p. Malformed URLs and unsupported schemes fail at once.
func DialRetry(ctx context.Context, rawURL string, p retry.Policy) (c *Client, err error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, errors.WithStack(err)
	}
	err = p.Do(ctx, func(attempt int) error {
		if attempt > 0 {
			xlog.Debug().Int("attempt", attempt+1).Str("url", rawURL).Msg("Retrying dial")
		}
		c, err = Dial(ctx, rawURL)
		if errors.Is(err, errUnsupportedScheme) {
			return retry.Permanent(err)
		}
		return err
	})
	return c, err
}

// Err returns the reason the client stopped, nil while it is running or after Close.
func (c *Client) Err() error {
	c.elock.Lock()
	defer c.elock.Unlock()
	if c.err == ErrClientClosed {
		return nil
	}
	return c.err
}

// Done is closed once the connection is finished.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) send(ctx context.Context, m transport.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.t.Send(ctx, m)
}

// shutdown rejects every pending call and releases the transport.
func (c *Client) shutdown(e error) {
	c.elock.Lock()
	if c.pending == nil {
		c.elock.Unlock()
		return
	}
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = nil
	c.err = cmp.Or(e, ErrClientClosed)
	c.elock.Unlock()

	c.t.Close()
	if c.closer != nil {
		c.closer.Close()
	}
	close(c.done)
}

func (c *Client) promise(id uint64) (chan *jrpc.Response, error) {
	c.elock.Lock()
	defer c.elock.Unlock()
	if c.pending == nil {
		return nil, cmp.Or(c.err, ErrClientClosed)
	}
	ch := make(chan *jrpc.Response, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Client) pop(id uint64) (ch chan *jrpc.Response, ok bool) {
	c.elock.Lock()
	defer c.elock.Unlock()
	if ch, ok = c.pending[id]; ok {
		delete(c.pending, id)
	}
	return
}

func (c *Client) input() {
	var err error
	defer func() { c.shutdown(err) }()

	ctx := context.Background()
	for {
		var m transport.Message
		if m, err = c.t.Receive(ctx); err != nil {
			if errors.Is(err, io.EOF) || c.closing.Load() {
				err = nil
			}
			return
		}

		switch m.Op {
		case transport.Ping:
			if err = c.send(ctx, transport.PongMessage(m.Payload)); err != nil {
				return
			}
		case transport.Close:
			if !c.closing.Swap(true) {
				c.send(ctx, transport.CloseMessage(nil))
			}
			return
		case transport.Text, transport.Binary:
			c.deliver(m.Payload)
		}
	}
}

func (c *Client) deliver(payload []byte) {
	resp, err := jrpc.ParseResponse(payload)
	if err != nil {
		xlog.Debug().Err(err).Bytes("msg", payload).Msg("Ignoring unexpected message")
		return
	}
	id, err := strconv.ParseUint(string(resp.ID), 10, 64)
	if err != nil {
		xlog.Debug().RawJSON("id", resp.ID).AnErr("reply", resp.Err()).Msg("Response without a known id")
		return
	}
	if ch, ok := c.pop(id); ok {
		ch <- resp
	}
}

// CallRaw sends a call and waits for the response. A JSON-RPC error reply is returned as
// a *jrpc.Error.
func (c *Client) CallRaw(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	id := c.seq.Add(1)
	req, err := jrpc.NewCall(id, method, params...)
	if err != nil {
		return nil, err
	}
	data, err := req.MarshalJSON()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ch, err := c.promise(id)
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, transport.TextMessage(data)); err != nil {
		c.pop(id)
		return nil, errors.Wrap(err, "jrpc: send")
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, cmp.Or(c.Err(), ErrClientClosed)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.pop(id)
		return nil, context.Cause(ctx)
	}
}

// Call is CallRaw decoding the result into result, which may be nil.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	raw, err := c.CallRaw(ctx, method, params...)
	if err != nil || result == nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(raw, result), "jrpc: cannot decode result")
}

// Notify sends a notification, no response is expected.
func (c *Client) Notify(ctx context.Context, method string, params ...any) error {
	req, err := jrpc.NewNotification(method, params...)
	if err != nil {
		return err
	}
	data, err := req.MarshalJSON()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(c.send(ctx, transport.TextMessage(data)), "jrpc: send")
}

// Close performs the close handshake and releases the connection. Pending calls fail.
func (c *Client) Close() error {
	if !c.closing.Swap(true) {
		ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
		defer cancel()
		if err := c.send(ctx, transport.CloseMessage(nil)); err == nil {
			select {
			case <-c.done:
			case <-ctx.Done():
			}
		}
	}
	c.shutdown(nil)
	return nil
}
