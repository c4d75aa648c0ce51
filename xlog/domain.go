package xlog

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// The caller field is used to record the "domain" of a logger, a dotted path naming what
// is being logged about, e.g. wsjrpc, wsjrpc.server, wsjrpc.conn.
const (
	DomainFieldName = "dom"
	RootDomain      = "wsjrpc"
)

// Domain is a zerolog hook stamping every event with the time and its name.
type Domain struct {
	name        string
	encodedName []byte // JSON escaped name
	logger      Logger
}

func (d *Domain) String() string { return d.name }

// Implement zerolog.Hook
func (d *Domain) Run(e *Event, level Level, msg string) {
	e.Timestamp()
	if e.Enabled() {
		e.RawJSON(DomainFieldName, d.encodedName)
	}
}

// NewDomain creates a new domain and its logger writing to w, the default output if none.
func NewDomain(name string, w ...io.Writer) (l *Logger) {
	if len(w) == 0 {
		w = append(w, DefaultWriter{})
	}
	dom := &Domain{name: name}
	dom.encodedName, _ = json.Marshal(name)
	dom.logger = zerolog.New(zerolog.MultiLevelWriter(w...)).Hook(dom)
	return &dom.logger
}

// SubDomain creates the logger of a component, named after the root domain.
func SubDomain(name string) *Logger {
	return NewDomain(RootDomain + "." + name)
}
