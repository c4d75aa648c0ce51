// Package demo holds the example methods exposed by the serve command.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"get.pme.sh/wsjrpc/jrpc"
)

// Methods are stateful only through the id counter, which starts at 1.
type Methods struct {
	ids atomic.Uint64
}

func (m *Methods) Greeting(name string) *jrpc.Promise[string] {
	return jrpc.Async(func() (string, error) {
		return fmt.Sprintf("Hello, %s", name), nil
	})
}

func (m *Methods) NextID() uint64 {
	return m.ids.Add(1)
}

func (m *Methods) Add(a, b int) int {
	return a + b
}

// Sleep waits ms milliseconds and returns ms. It gives up early with an error if ctx ends.
func (m *Methods) Sleep(ctx context.Context, ms int) (int, error) {
	if ms < 0 {
		return 0, jrpc.InvalidParams("sleep duration must not be negative")
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return ms, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Fail replies with a server error. Codes outside the server band become -32000.
func (m *Methods) Fail(code int32, msg string) error {
	if !jrpc.IsServerErrorCode(code) {
		code = jrpc.CodeServerErrorMax
	}
	return jrpc.ServerError(code, msg, nil)
}

func (m *Methods) Echo(v json.RawMessage) json.RawMessage {
	return v
}

// Entries lists the methods under their wire names.
func (m *Methods) Entries() []jrpc.Entry {
	return []jrpc.Entry{
		jrpc.Method("greeting", m.Greeting),
		jrpc.Method("next_id", m.NextID),
		jrpc.Method("add", m.Add),
		jrpc.Method("sleep", m.Sleep),
		jrpc.Method("fail", m.Fail),
		jrpc.Method("echo", m.Echo),
	}
}

// Register adds a fresh set of demo methods to reg.
func Register(reg *jrpc.Registry) *Methods {
	m := &Methods{}
	reg.Register(m.Entries()...)
	return m
}
