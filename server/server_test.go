package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"get.pme.sh/wsjrpc/client"
	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/demo"
	"get.pme.sh/wsjrpc/handler"
	"get.pme.sh/wsjrpc/jrpc"
	"get.pme.sh/wsjrpc/rate"
	"get.pme.sh/wsjrpc/transport"

	"github.com/nsf/jsondiff"
)

type fixture struct {
	*Server
	http *httptest.Server
	url  string
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	reg := jrpc.NewRegistry()
	demo.Register(reg)
	cfg := &config.Config{}
	for _, o := range opts {
		o(cfg)
	}
	cfg.SetDefaults()

	s := New(handler.New(reg), cfg)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
		ts.Close()
	})
	return &fixture{s, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/"}
}

func (f *fixture) health(t *testing.T) []byte {
	t.Helper()
	resp, err := http.Get(f.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func expectJSON(t *testing.T, got []byte, want string) {
	t.Helper()
	opts := jsondiff.DefaultConsoleOptions()
	if diff, desc := jsondiff.Compare(got, []byte(want), &opts); diff != jsondiff.FullMatch {
		t.Fatalf("unexpected JSON: %s\n%s", diff, desc)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	expectJSON(t, f.health(t), `{"ok":true,"connections":0}`)

	resp, err := http.Get(f.http.URL + "/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d", resp.StatusCode)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, f.url)
	if err != nil {
		t.Fatal(err)
	}
	var greeting string
	if err := c.Call(ctx, "greeting", &greeting, "world"); err != nil {
		t.Fatal(err)
	}
	if greeting != "Hello, world" {
		t.Fatalf("got %q", greeting)
	}
	var id uint64
	if err := c.Call(ctx, "next_id", &id); err != nil || id != 1 {
		t.Fatalf("got %d, %v", id, err)
	}

	expectJSON(t, f.health(t), `{"ok":true,"connections":1}`)
	if conns := f.Connections(); len(conns) != 1 || conns[0].Proto != "ws" {
		t.Fatalf("got %+v", conns)
	}

	c.Close()
	eventually(t, func() bool { return len(f.Connections()) == 0 })
}

func TestWebsocketFrames(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, err := transport.Dial(ctx, f.url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if ws.Subprotocol() != transport.Subprotocol {
		t.Fatalf("negotiated %q", ws.Subprotocol())
	}

	if err := ws.Send(ctx, transport.Message{Op: transport.Ping, Payload: []byte("hb")}); err != nil {
		t.Fatal(err)
	}
	m, err := ws.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if m.Op != transport.Pong || string(m.Payload) != "hb" {
		t.Fatalf("got %s %q", m.Op, m.Payload)
	}

	call := `{"jsonrpc":"2.0","method":"add","params":[1,2],"id":"x"}`
	if err := ws.Send(ctx, transport.Message{Op: transport.Binary, Payload: []byte(call)}); err != nil {
		t.Fatal(err)
	}
	if m, err = ws.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Op != transport.Text {
		t.Fatalf("reply sent as %s", m.Op)
	}
	expectJSON(t, m.Payload, `{"jsonrpc":"2.0","result":3,"id":"x"}`)

	if err := ws.Send(ctx, transport.CloseMessage(nil)); err != nil {
		t.Fatal(err)
	}
	if m, err = ws.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Op != transport.Close {
		t.Fatalf("expected close acknowledgement, got %s", m.Op)
	}
}

func TestYamux(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go f.ServeTCP(ln)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, "tcp://"+ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var echo json.RawMessage
	if err := c.Call(ctx, "echo", &echo, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	expectJSON(t, echo, `{"a":1}`)
	eventually(t, func() bool {
		conns := f.Connections()
		return len(conns) == 1 && conns[0].Proto == "tcp"
	})
}

func TestShutdownClosesConnections(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, f.url)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Call(ctx, "add", nil, 1, 1); err != nil {
		t.Fatal(err)
	}

	if err := f.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.Done():
	case <-ctx.Done():
		t.Fatal("client still connected after shutdown")
	}
	if n := len(f.Connections()); n != 0 {
		t.Fatalf("%d connections left", n)
	}
}

func TestConnectRate(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.ConnectRate = rate.Rate{Count: 1, Period: time.Hour}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, f.url)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := client.Dial(ctx, f.url); err == nil {
		t.Fatal("second connection admitted")
	}
	resp, err := http.Get(f.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") != "3600" {
		t.Fatalf("got %d, retry after %q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	if err := c.Call(ctx, "add", nil, 1, 2); err != nil {
		t.Fatal(err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	reg := jrpc.NewRegistry()
	cfg := &config.Config{Listen: "127.0.0.1:0", TCP: "127.0.0.1:0", MaxConnections: 2}
	cfg.SetDefaults()
	s := New(handler.New(reg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestLateConnectionAfterShutdown(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	client, server := transport.Pipe()
	done := make(chan struct{})
	go func() {
		f.serveTransport(server, "ws")
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("connection served after shutdown")
	}
	if _, err := client.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected the transport to be closed, got %v", err)
	}
	if n := len(f.Connections()); n != 0 {
		t.Fatalf("%d connections tracked", n)
	}
}
