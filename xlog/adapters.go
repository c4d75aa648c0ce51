package xlog

import (
	"bytes"
	"io"
	"log/slog"
	"sync"

	"get.pme.sh/wsjrpc/util"

	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// TextAdapter turns plain text writes into one log event per line.
type TextAdapter struct {
	logger *Logger
	level  Level
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *TextAdapter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, rest, found := bytes.Cut(w.buf.Bytes(), []byte{'\n'})
		if !found {
			break
		}
		if line = bytes.TrimRight(line, "\r\x00\f"); len(line) != 0 {
			w.logger.WithLevel(w.level).Msg(util.UnsafeString(line))
		}
		w.buf.Next(len(w.buf.Bytes()) - len(rest))
	}
	return len(p), nil
}

// Creates a new writer that logs each line written to it.
func ToTextWriter(logger *Logger, level Level) io.Writer {
	return &TextAdapter{logger: logger, level: level}
}

// Creates a new slog.Logger that writes to the logger.
func ToSlog(logger *Logger) *slog.Logger {
	return slog.New(slogzerolog.Option{
		Logger: logger,
	}.NewZerologHandler())
}
