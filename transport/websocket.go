package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Subprotocol is offered by both the upgrader and the dialer.
const Subprotocol = "jsonrpc"

const (
	DefaultWriteTimeout = 10 * time.Second
	websocketBufferSize = 32 * 1024
)

type inbound struct {
	m   Message
	err error
}

// Websocket adapts a gorilla connection to Transport.
//
// Gorilla answers control frames on its own by default; the adapter replaces those
// handlers so that ping, pong and close frames reach the caller like any other message.
// After the peer's close frame, Receive reports io.EOF only once the socket itself ends.
// Data written after a close frame is discarded, the protocol forbids sending it.
type Websocket struct {
	conn         *websocket.Conn
	in           chan inbound
	closed       chan struct{}
	closeOnce    sync.Once
	WriteTimeout time.Duration
}

func NewWebsocket(conn *websocket.Conn) *Websocket {
	w := &Websocket{
		conn:         conn,
		in:           make(chan inbound, 1),
		closed:       make(chan struct{}),
		WriteTimeout: DefaultWriteTimeout,
	}
	conn.SetPingHandler(func(data string) error {
		w.push(inbound{m: Message{Op: Ping, Payload: []byte(data)}})
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		w.push(inbound{m: Message{Op: Pong, Payload: []byte(data)}})
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		var payload []byte
		if code != websocket.CloseNoStatusReceived {
			payload = websocket.FormatCloseMessage(code, text)
		}
		w.push(inbound{m: Message{Op: Close, Payload: payload}})
		return nil
	})
	go w.readLoop()
	return w
}

func (w *Websocket) push(r inbound) bool {
	select {
	case w.in <- r:
		return true
	case <-w.closed:
		return false
	}
}

func (w *Websocket) readLoop() {
	defer close(w.in)
	for {
		ty, data, err := w.conn.ReadMessage()
		if err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				w.awaitEOF()
				return
			}
			w.push(inbound{err: errors.WithStack(err)})
			return
		}
		op := Text
		if ty == websocket.BinaryMessage {
			op = Binary
		}
		if !w.push(inbound{m: Message{Op: op, Payload: data}}) {
			return
		}
	}
}

// awaitEOF holds the stream open after a close frame until the peer drops the socket or
// Close is called. No frames may follow a close, anything read is discarded.
func (w *Websocket) awaitEOF() {
	raw := w.conn.UnderlyingConn()
	buf := make([]byte, 512)
	for {
		if _, err := raw.Read(buf); err != nil {
			return
		}
	}
}

func (w *Websocket) Receive(ctx context.Context) (Message, error) {
	select {
	case r, ok := <-w.in:
		if !ok {
			return Message{}, io.EOF
		}
		return r.m, r.err
	case <-w.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, context.Cause(ctx)
	}
}

func (w *Websocket) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(w.WriteTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

func (w *Websocket) Send(ctx context.Context, m Message) (err error) {
	deadline := w.deadline(ctx)
	switch m.Op {
	case Text, Binary:
		ty := websocket.TextMessage
		if m.Op == Binary {
			ty = websocket.BinaryMessage
		}
		if err = w.conn.SetWriteDeadline(deadline); err == nil {
			err = w.conn.WriteMessage(ty, m.Payload)
		}
	case Ping:
		err = w.conn.WriteControl(websocket.PingMessage, m.Payload, deadline)
	case Pong:
		err = w.conn.WriteControl(websocket.PongMessage, m.Payload, deadline)
	case Close:
		err = w.conn.WriteControl(websocket.CloseMessage, m.Payload, deadline)
	default:
		return ErrUnsupported{m.Op}
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return errors.WithStack(err)
}

func (w *Websocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.conn.Close()
	})
	return err
}

func (w *Websocket) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

// Subprotocol returns the negotiated subprotocol, empty if none.
func (w *Websocket) Subprotocol() string {
	return w.conn.Subprotocol()
}

// NewUpgrader returns the upgrader used by the server, offering Subprotocol.
func NewUpgrader(handshakeTimeout time.Duration) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		ReadBufferSize:   websocketBufferSize,
		WriteBufferSize:  websocketBufferSize,
		Subprotocols:     []string{Subprotocol},
	}
}

// Upgrade completes the websocket handshake on an HTTP request.
func Upgrade(u *websocket.Upgrader, rw http.ResponseWriter, r *http.Request, readLimit int64) (*Websocket, error) {
	conn, err := u.Upgrade(rw, r, nil)
	if err != nil {
		return nil, err
	}
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return NewWebsocket(conn), nil
}

// Dial connects to a websocket endpoint, the URL scheme must be ws or wss.
func Dial(ctx context.Context, url string, header http.Header) (*Websocket, error) {
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
		Subprotocols:     []string{Subprotocol},
		ReadBufferSize:   websocketBufferSize,
		WriteBufferSize:  websocketBufferSize,
	}
	conn, resp, err := d.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "transport: dial %s failed with status %d", url, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "transport: dial %s", url)
	}
	return NewWebsocket(conn), nil
}
