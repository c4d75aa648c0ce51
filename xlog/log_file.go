package xlog

import (
	"io"
	"path/filepath"
	"sync"

	"get.pme.sh/wsjrpc/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogRetentionDays = 28
	LogMaxSizeMB     = 16
	LogCompress      = false
)

var (
	fileWriters   = map[string]*lumberjack.Logger{}
	fileWritersMu sync.Mutex
)

type noCloser struct {
	io.Writer
}

func (noCloser) Close() error { return nil }

// FileWriter returns a rotating writer for the named log file, relative names are placed
// under the configured log directory. Writers are shared per path.
func FileWriter(name string) io.WriteCloser {
	switch name {
	case "", "null", "NUL", "/dev/null":
		return nil
	case "stdout", "stderr":
		return noCloser{DefaultWriter{}}
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(config.LogDir(), name)
	}

	fileWritersMu.Lock()
	defer fileWritersMu.Unlock()
	if w, ok := fileWriters[name]; ok {
		return noCloser{w}
	}
	w := &lumberjack.Logger{
		Filename: name,
		MaxSize:  LogMaxSizeMB,
		MaxAge:   LogRetentionDays,
		Compress: LogCompress,
	}
	fileWriters[name] = w
	return noCloser{w}
}

// CloseFiles closes every file writer handed out by FileWriter.
func CloseFiles() {
	fileWritersMu.Lock()
	defer fileWritersMu.Unlock()
	for name, w := range fileWriters {
		w.Close()
		delete(fileWriters, name)
	}
}
