package handler

import (
	"context"
	"errors"

	"get.pme.sh/wsjrpc/jrpc"
	"get.pme.sh/wsjrpc/snowflake"
	"get.pme.sh/wsjrpc/transport"
	"get.pme.sh/wsjrpc/xlog"
)

const DefaultQueueSize = 64

// Handler serves JSON-RPC connections against a registry.
//
// The registry is read without synchronization: it must not be modified while any
// connection is being served.
type Handler struct {
	registry  *jrpc.Registry
	logger    *xlog.Logger
	queueSize int
}

type Option func(*Handler)

func WithLogger(l *xlog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithQueueSize bounds the outbound queue of each connection. Producers block while it
// is full.
func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func New(registry *jrpc.Registry, opts ...Option) *Handler {
	h := &Handler{
		registry:  registry,
		logger:    xlog.Default(),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Registry() *jrpc.Registry { return h.registry }

// Serve drives one connection until it is closed or fails.
//
// It returns nil once the peer has completed the close handshake or ended the stream,
// and the first transport error otherwise. Cancelling ctx closes the transport and
// Serve returns the cause. Method calls still running when Serve returns are not
// cancelled, their responses are dropped.
func (h *Handler) Serve(ctx context.Context, t transport.Transport) error {
	return h.ServeConn(ctx, t, snowflake.New())
}

// ServeConn is Serve with a caller assigned connection id, used in log events.
func (h *Handler) ServeConn(ctx context.Context, t transport.Transport, id snowflake.ID) error {
	lc := h.logger.With().Stringer("conn", id)
	if a, ok := t.(transport.Addressed); ok {
		lc = lc.Str("peer", a.RemoteAddr())
	}
	logger := lc.Logger()

	c := newConn(h, t, &logger)
	err := c.run(xlog.WithContext(ctx, &logger))
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

// call resolves and invokes the method, returning the response to send if any.
func (h *Handler) call(ctx context.Context, req *jrpc.Request) *jrpc.Response {
	b, ok := h.registry.Lookup(req.Method)
	if !ok {
		if req.IsNotification() {
			xlog.DebugC(ctx).Str("method", req.Method).Msg("Notification for unknown method dropped")
			return nil
		}
		return jrpc.Fail(jrpc.MethodNotFound(req.Method), req.ID)
	}

	result, rerr := invoke(ctx, b, req).Wait()
	if req.IsNotification() {
		if rerr != nil {
			xlog.DebugC(ctx).Str("method", req.Method).Int32("code", rerr.Code).Msg("Notification failed")
		}
		return nil
	}
	if rerr != nil {
		return jrpc.Fail(rerr, req.ID)
	}
	return jrpc.Ok(result, req.ID)
}

// invoke calls the binding, turning a panicking method body into an internal error.
// Contract violations are defects of the server and keep panicking.
func invoke(ctx context.Context, b *jrpc.Binding, req *jrpc.Request) (f *jrpc.Future) {
	defer func() {
		if r := recover(); r != nil {
			var contract *jrpc.ContractError
			if err, ok := r.(error); ok && errors.As(err, &contract) {
				panic(r)
			}
			xlog.ErrStackC(ctx, r).Str("method", req.Method).Msg("Method panicked")
			f = jrpc.Completed(nil, jrpc.InternalError(nil))
		}
	}()
	return b.Invoke(ctx, req.Params)
}
