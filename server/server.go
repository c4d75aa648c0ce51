// Package server exposes a handler over websocket and raw TCP listeners.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/handler"
	"get.pme.sh/wsjrpc/rate"
	"get.pme.sh/wsjrpc/snowflake"
	"get.pme.sh/wsjrpc/transport"
	"get.pme.sh/wsjrpc/xlog"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

var ErrServerClosed = errors.New("server closed")

type Server struct {
	handler  *handler.Handler
	cfg      *config.Config
	logger   *xlog.Logger
	upgrader *websocket.Upgrader
	limiter  *rate.Limiter
	router   *httprouter.Router
	http     http.Server

	ctx    context.Context
	cancel context.CancelCauseFunc
	conns  connTable
	wg     sync.WaitGroup

	mu        sync.Mutex
	listeners []net.Listener
}

func New(h *handler.Handler, cfg *config.Config) *Server {
	logger := xlog.SubDomain("server")
	s := &Server{
		handler:  h,
		cfg:      cfg,
		logger:   logger,
		upgrader: transport.NewUpgrader(cfg.HandshakeTimeout.Or(10 * time.Second)),
		router:   httprouter.New(),
		limiter:  rate.NewLimiter(cfg.ConnectRate),
	}
	s.ctx, s.cancel = context.WithCancelCause(logger.WithContext(context.Background()))

	s.router.GET("/healthz", s.serveHealth)
	s.router.GET("/connections", s.serveConnections)
	s.router.GET(cfg.Path, s.serveWebsocket)

	s.http = http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
		ErrorLog:          log.New(xlog.ToTextWriter(logger, xlog.LevelError), "", 0),
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Connections lists the live connections, oldest first.
func (s *Server) Connections() []ConnInfo {
	return s.conns.list()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, map[string]any{"ok": true, "connections": s.conns.len()})
}

func (s *Server) serveConnections(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, s.conns.list())
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.limiter.Take(); err != nil {
		var re rate.RateError
		if errors.As(err, &re) {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(re.RetryAfter.Round(time.Second)/time.Second))))
		}
		s.logger.Debug().EmbedObject(xlog.EnhanceRequest(r)).Msg("Connection rate exceeded")
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	ws, err := transport.Upgrade(s.upgrader, w, r, s.cfg.ReadLimit.Bytes())
	if err != nil {
		s.logger.Debug().Err(err).EmbedObject(xlog.EnhanceRequest(r)).Msg("Upgrade failed")
		return
	}
	ws.WriteTimeout = s.cfg.WriteTimeout.Or(transport.DefaultWriteTimeout)
	s.logger.Debug().EmbedObject(xlog.EnhanceRequest(r)).Msg("Upgraded")
	s.serveTransport(ws, "ws")
}

// enter registers a serving goroutine, false once shutdown has begun.
func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

// serveTransport runs the handler on t until it finishes or the server shuts down.
func (s *Server) serveTransport(t transport.Transport, proto string) {
	if !s.enter() {
		t.Close()
		return
	}
	defer s.wg.Done()

	info := ConnInfo{ID: snowflake.New(), Proto: proto, Since: time.Now()}
	if a, ok := t.(transport.Addressed); ok {
		info.Remote = a.RemoteAddr()
	}
	s.conns.add(info)
	defer s.conns.remove(info.ID)

	logger := s.logger.With().Stringer("conn", info.ID).Str("proto", proto).Str("peer", info.Remote).Logger()
	logger.Info().Msg("Connection opened")
	err := s.handler.ServeConn(s.ctx, t, info.ID)
	switch {
	case err == nil:
		logger.Info().Dur("age", time.Since(info.Since)).Msg("Connection closed")
	case errors.Is(err, ErrServerClosed):
		logger.Info().Msg("Connection closed by shutdown")
	default:
		logger.Warn().Err(err).Msg("Connection failed")
	}
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		ln.Close()
		return false
	}
	s.listeners = append(s.listeners, ln)
	return true
}

// Serve accepts websocket clients on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track(ln) {
		return nil
	}
	s.logger.Info().Stringer("addr", ln.Addr()).Str("path", s.cfg.Path).Msg("Listening for websocket clients")
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || s.ctx.Err() != nil {
		return nil
	}
	return errors.WithStack(err)
}

// ServeTCP accepts raw TCP connections on ln, each carrying a yamux session whose streams
// are served as separate connections.
func (s *Server) ServeTCP(ln net.Listener) error {
	if !s.track(ln) {
		return nil
	}
	s.logger.Info().Stringer("addr", ln.Addr()).Msg("Listening for yamux clients")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return errors.WithStack(err)
		}
		if err := s.limiter.Take(); err != nil {
			s.logger.Debug().Stringer("peer", conn.RemoteAddr()).Msg("Connection rate exceeded")
			conn.Close()
			continue
		}
		if !s.enter() {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			err := transport.ServeMux(s.ctx, conn, func(t transport.Transport) {
				s.serveTransport(t, "tcp")
			})
			if err != nil {
				s.logger.Warn().Err(err).Stringer("peer", conn.RemoteAddr()).Msg("Yamux session failed")
			}
		}()
	}
}

// Shutdown stops the listeners, closes every connection and waits for them to finish or
// ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel(ErrServerClosed)
	for _, ln := range s.listeners {
		ln.Close()
	}
	s.listeners = nil
	s.mu.Unlock()

	err := s.http.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = errors.Wrap(context.Cause(ctx), "connections still open")
		}
	}
	s.logger.Info().Msg("Server stopped")
	return err
}

// Run listens on the configured addresses and serves until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	var tln net.Listener
	if s.cfg.TCP != "" {
		if tln, err = net.Listen("tcp", s.cfg.TCP); err != nil {
			ln.Close()
			return errors.Wrap(err, "listen tcp")
		}
	}

	if n := s.cfg.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
		if tln != nil {
			tln = netutil.LimitListener(tln, n)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(ln) })
	if tln != nil {
		g.Go(func() error { return s.ServeTCP(tln) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Or(30*time.Second))
		defer cancel()
		return s.Shutdown(sctx)
	})
	return g.Wait()
}
