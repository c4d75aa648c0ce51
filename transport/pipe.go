package transport

import (
	"context"
	"io"
	"sync"
)

type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

type pipeEnd struct {
	*pipe
	in  <-chan Message
	out chan<- Message
}

// Pipe returns two connected in-memory transports. Closing either end finishes the
// stream for both: pending messages are still delivered, then Receive reports io.EOF.
func Pipe() (Transport, Transport) {
	p := &pipe{done: make(chan struct{})}
	ab := make(chan Message, 16)
	ba := make(chan Message, 16)
	return &pipeEnd{p, ba, ab}, &pipeEnd{p, ab, ba}
}

func (e *pipeEnd) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-e.in:
		return m, nil
	case <-e.done:
		select {
		case m := <-e.in:
			return m, nil
		default:
			return Message{}, io.EOF
		}
	case <-ctx.Done():
		return Message{}, context.Cause(ctx)
	}
}

func (e *pipeEnd) Send(ctx context.Context, m Message) error {
	select {
	case <-e.done:
		return ErrClosed
	default:
	}
	select {
	case e.out <- m:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (e *pipeEnd) Close() error {
	e.close()
	return nil
}

func (e *pipeEnd) RemoteAddr() string { return "pipe" }
