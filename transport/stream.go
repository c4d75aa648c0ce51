package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// MaxLineSize bounds a single newline delimited message.
const MaxLineSize = 16 * 1024 * 1024

var writerPool = sync.Pool{
	New: func() any {
		return bufio.NewWriterSize(nil, 64*1024)
	},
}

// Stream carries newline delimited JSON over a byte stream such as a TCP connection,
// a yamux stream or stdio. It only knows text messages: a close is answered by closing
// the stream, and pings cannot occur.
type Stream struct {
	rwc   io.ReadWriteCloser
	rb    *bufio.Scanner
	wb    *bufio.Writer
	wlock sync.Mutex
}

func NewStream(rwc io.ReadWriteCloser) *Stream {
	if tcp, ok := rwc.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	wb := writerPool.Get().(*bufio.Writer)
	wb.Reset(rwc)

	rb := bufio.NewScanner(rwc)
	rb.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &Stream{rwc: rwc, rb: rb, wb: wb}
}

func (s *Stream) Receive(ctx context.Context) (Message, error) {
	for s.rb.Scan() {
		line := bytes.TrimSpace(s.rb.Bytes())
		if len(line) == 0 {
			continue
		}
		// The scanner reuses its buffer.
		return TextMessage(bytes.Clone(line)), nil
	}
	if err := s.rb.Err(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Message{}, ErrClosed
		}
		return Message{}, errors.WithStack(err)
	}
	return Message{}, io.EOF
}

func (s *Stream) Send(ctx context.Context, m Message) error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	if s.wb == nil {
		return ErrClosed
	}

	switch m.Op {
	case Text, Binary:
	case Close:
		s.wb.Flush()
		return s.closeLocked()
	case Pong, Ping:
		return nil
	default:
		return ErrUnsupported{m.Op}
	}

	s.wb.Write(bytes.TrimRight(m.Payload, "\r\n"))
	s.wb.WriteByte('\n')
	return errors.WithStack(s.wb.Flush())
}

func (s *Stream) closeLocked() error {
	if s.wb == nil {
		return nil
	}
	s.wb.Reset(nil)
	writerPool.Put(s.wb)
	s.wb = nil
	return s.rwc.Close()
}

func (s *Stream) Close() error {
	s.wlock.Lock()
	defer s.wlock.Unlock()
	return s.closeLocked()
}

func (s *Stream) RemoteAddr() string {
	if c, ok := s.rwc.(interface{ RemoteAddr() net.Addr }); ok {
		return c.RemoteAddr().String()
	}
	return ""
}
