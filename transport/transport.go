package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

type Opcode uint8

const (
	Text Opcode = iota + 1
	Binary
	Ping
	Pong
	Close
)

var opcodeNames = map[Opcode]string{
	Text:   "text",
	Binary: "binary",
	Ping:   "ping",
	Pong:   "pong",
	Close:  "close",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", uint8(o))
}

// IsData reports whether the message carries application data rather than control.
func (o Opcode) IsData() bool {
	return o == Text || o == Binary
}

type Message struct {
	Op      Opcode
	Payload []byte
}

func TextMessage(payload []byte) Message  { return Message{Op: Text, Payload: payload} }
func PongMessage(payload []byte) Message  { return Message{Op: Pong, Payload: payload} }
func CloseMessage(payload []byte) Message { return Message{Op: Close, Payload: payload} }

// Transport is one ready, message oriented, bidirectional connection.
//
// Receive is only ever called from one goroutine, and so is Send. Receive returns io.EOF
// once the peer has finished the stream. Close unblocks a pending Receive.
type Transport interface {
	Receive(ctx context.Context) (Message, error)
	Send(ctx context.Context, m Message) error
	Close() error
}

// Addressed is implemented by transports that know their peer.
type Addressed interface {
	RemoteAddr() string
}

var ErrClosed = errors.New("transport: closed")

// ErrUnsupported is returned when a transport cannot carry the given opcode.
type ErrUnsupported struct {
	Op Opcode
}

func (e ErrUnsupported) Error() string {
	return fmt.Sprintf("transport: %s messages are not supported", e.Op)
}
