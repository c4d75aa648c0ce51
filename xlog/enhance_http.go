package xlog

import (
	"net/http"
	"strings"
)

type EventEnhancer interface {
	MarshalZerologObject(e *Event)
}

// handshake logs what matters about a websocket upgrade request.
type handshake struct {
	r *http.Request
}

var handshakeHeaders = [...]struct{ header, field string }{
	{"User-Agent", "ua"},
	{"Origin", "origin"},
	{"X-Forwarded-For", "fwd"},
	{"Sec-Websocket-Version", "wsver"},
}

func (h handshake) MarshalZerologObject(e *Event) {
	if !e.Enabled() {
		return
	}
	e.Str("adr", h.r.RemoteAddr)
	e.Str("path", h.r.URL.Path)
	for _, hd := range handshakeHeaders {
		if v := h.r.Header.Get(hd.header); v != "" {
			e.Str(hd.field, v)
		}
	}
	if protos := h.r.Header.Values("Sec-Websocket-Protocol"); len(protos) != 0 {
		e.Str("subproto", strings.Join(protos, ","))
	}
	if !strings.EqualFold(h.r.Header.Get("Upgrade"), "websocket") {
		e.Bool("plain", true)
	}
	if e.GetCtx().Value(http.ServerContextKey) == nil {
		e.Ctx(h.r.Context())
	}
}

// EnhanceRequest attaches the handshake details of r to an event.
func EnhanceRequest(r *http.Request) EventEnhancer {
	return handshake{r}
}
