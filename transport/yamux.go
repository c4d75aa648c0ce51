package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
)

var yamuxConfig = &yamux.Config{
	AcceptBacklog:          256,
	EnableKeepAlive:        true,
	KeepAliveInterval:      30 * time.Second,
	ConnectionWriteTimeout: 10 * time.Second,
	MaxStreamWindowSize:    512 * 1024,
	StreamCloseTimeout:     5 * time.Minute,
	StreamOpenTimeout:      75 * time.Second,
	LogOutput:              io.Discard,
}

func closeGraceful(session *yamux.Session) {
	session.GoAway()
	go func() {
		select {
		case <-time.After(yamuxConfig.StreamCloseTimeout):
		case <-session.CloseChan():
		}
		session.Close()
	}()
}

// ServeMux accepts yamux streams on conn and calls serve for each of them on its own
// goroutine, every stream being a newline delimited Stream. It returns once the session
// ends or ctx is done, after all serve calls have returned.
func ServeMux(ctx context.Context, conn net.Conn, serve func(Transport)) error {
	session, err := yamux.Server(conn, yamuxConfig)
	if err != nil {
		conn.Close()
		return errors.WithStack(err)
	}
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()
	defer closeGraceful(session)

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	for {
		stream, err := session.Accept()
		if err != nil {
			if errors.Is(err, io.EOF) || session.IsClosed() {
				return nil
			}
			return errors.WithStack(err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(NewStream(stream))
		}()
	}
}

// MuxClient opens logical connections over a single yamux session.
type MuxClient struct {
	session *yamux.Session
}

func DialMux(conn net.Conn) (*MuxClient, error) {
	session, err := yamux.Client(conn, yamuxConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MuxClient{session: session}, nil
}

// Open starts a new stream, seen by the server as a fresh connection.
func (c *MuxClient) Open() (*Stream, error) {
	stream, err := c.session.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewStream(stream), nil
}

func (c *MuxClient) Close() error {
	closeGraceful(c.session)
	return nil
}
