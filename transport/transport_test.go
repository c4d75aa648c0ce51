package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func timeout(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustReceive(t *testing.T, tr Transport) Message {
	t.Helper()
	m, err := tr.Receive(timeout(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return m
}

func TestOpcodes(t *testing.T) {
	if Text.String() != "text" || Close.String() != "close" || Opcode(0).String() != "opcode(0)" {
		t.Fatal("unexpected opcode names")
	}
	if !Text.IsData() || !Binary.IsData() || Ping.IsData() || Close.IsData() {
		t.Fatal("unexpected data opcodes")
	}
	if !strings.Contains(ErrUnsupported{Ping}.Error(), "ping") {
		t.Fatal("unsupported error does not name the opcode")
	}
}

func TestPipe(t *testing.T) {
	a, b := Pipe()
	ctx := timeout(t)
	if err := a.Send(ctx, TextMessage([]byte("1"))); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(ctx, Message{Op: Ping, Payload: []byte("2")}); err != nil {
		t.Fatal(err)
	}
	a.Close()

	// Pending messages are delivered before the end of stream.
	if m := mustReceive(t, b); m.Op != Text || string(m.Payload) != "1" {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}
	if m := mustReceive(t, b); m.Op != Ping {
		t.Fatalf("got %s", m.Op)
	}
	if _, err := b.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
	if err := b.Send(ctx, TextMessage(nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v", err)
	}
}

func TestPipeReceiveCancel(t *testing.T) {
	a, _ := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
}

func TestStream(t *testing.T) {
	c1, c2 := net.Pipe()
	a, b := NewStream(c1), NewStream(c2)
	ctx := timeout(t)

	go func() {
		a.Send(ctx, TextMessage([]byte(`{"a":1}`+"\n")))
		a.Send(ctx, Message{Op: Ping, Payload: []byte("ignored")})
		a.Send(ctx, Message{Op: Binary, Payload: []byte(`[2]`)})
		a.Send(ctx, CloseMessage(nil))
	}()

	if m := mustReceive(t, b); m.Op != Text || string(m.Payload) != `{"a":1}` {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}
	if m := mustReceive(t, b); m.Op != Text || string(m.Payload) != `[2]` {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}
	if _, err := b.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
	if err := a.Send(ctx, TextMessage([]byte("x"))); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	b.Close()
}

func TestStreamSkipsBlankLines(t *testing.T) {
	c1, c2 := net.Pipe()
	b := NewStream(c2)
	go func() {
		c1.Write([]byte("\n  \r\n{\"x\":true}\r\n"))
		c1.Close()
	}()
	if m := mustReceive(t, b); string(m.Payload) != `{"x":true}` {
		t.Fatalf("got %q", m.Payload)
	}
}

func TestYamux(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			served <- err
			return
		}
		// Echo every text message back on the same stream.
		served <- ServeMux(ctx, conn, func(tr Transport) {
			defer tr.Close()
			for {
				m, err := tr.Receive(ctx)
				if err != nil {
					return
				}
				tr.Send(ctx, m)
			}
		})
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	mux, err := DialMux(conn)
	if err != nil {
		t.Fatal(err)
	}
	defer mux.Close()

	var wg sync.WaitGroup
	for _, payload := range []string{`"one"`, `"two"`, `"three"`} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := mux.Open()
			if err != nil {
				t.Error(err)
				return
			}
			defer s.Close()
			if err := s.Send(timeout(t), TextMessage([]byte(payload))); err != nil {
				t.Error(err)
				return
			}
			m, err := s.Receive(timeout(t))
			if err != nil || string(m.Payload) != payload {
				t.Errorf("got %q, %v", m.Payload, err)
			}
		}()
	}
	wg.Wait()

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMux did not return")
	}
}

func TestWebsocket(t *testing.T) {
	upgrader := NewUpgrader(time.Second)
	serverSide := make(chan *Websocket, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := Upgrade(upgrader, w, r, 1024)
		if err != nil {
			return
		}
		serverSide <- ws
	}))
	defer ts.Close()

	ctx := timeout(t)
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server := <-serverSide
	defer server.Close()

	if client.Subprotocol() != Subprotocol || server.RemoteAddr() == "" {
		t.Fatalf("subprotocol %q, remote %q", client.Subprotocol(), server.RemoteAddr())
	}

	// Control frames surface as messages instead of being answered automatically.
	if err := client.Send(ctx, Message{Op: Ping, Payload: []byte("p")}); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, server); m.Op != Ping || string(m.Payload) != "p" {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}
	if err := server.Send(ctx, PongMessage([]byte("p"))); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, client); m.Op != Pong || string(m.Payload) != "p" {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}

	if err := client.Send(ctx, Message{Op: Binary, Payload: []byte{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, server); m.Op != Binary || len(m.Payload) != 2 {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}

	if err := client.Send(ctx, CloseMessage(nil)); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, server); m.Op != Close {
		t.Fatalf("got %s", m.Op)
	}
	// The stream stays open until the socket ends, replies may still be written.
	qctx, qcancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer qcancel()
	if m, err := server.Receive(qctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %s, %v", m.Op, err)
	}
	if err := server.Send(ctx, TextMessage([]byte("reply"))); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, client); m.Op != Text || string(m.Payload) != "reply" {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}
	if err := server.Send(ctx, CloseMessage(nil)); err != nil {
		t.Fatal(err)
	}
	if m := mustReceive(t, client); m.Op != Close {
		t.Fatalf("got %s", m.Op)
	}
	// Data after our own close frame is discarded.
	if err := client.Send(ctx, TextMessage([]byte("late"))); err != nil {
		t.Fatalf("got %v", err)
	}

	client.Close()
	if _, err := server.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("got %v", err)
	}
}
