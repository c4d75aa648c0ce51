package xlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"get.pme.sh/wsjrpc/config"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const domainColumnWidth = 18

func formatTimestamp(i any) string {
	ms, _ := i.(json.Number)
	msi, _ := ms.Int64()
	if msi == 0 {
		return ""
	}
	ts := time.UnixMilli(msi)
	if now := time.Now(); ts.YearDay() != now.YearDay() || ts.Year() != now.Year() {
		return ts.Format("01-02 15:04:05")
	}
	return ts.Format("15:04:05.000")
}

func formatDomain(i any) string {
	n, ok := i.(string)
	if !ok {
		return ""
	}
	if x := domainColumnWidth - len(n); x < 0 {
		n = n[:domainColumnWidth-1] + "…"
	} else {
		n += strings.Repeat(" ", x)
	}
	return fmt.Sprintf("│ \x1b[1m%s\x1b[0m", n)
}

func formatStack(m map[string]any, b *bytes.Buffer) error {
	arr, ok := m[zerolog.ErrorStackFieldName].([]any)
	if !ok {
		return nil
	}
	b.WriteString("\n│ \x1b[1mStack\x1b[0m\n")
	for _, i := range arr {
		if data, ok := i.(map[string]any); ok {
			funcn, _ := data["func"].(string)
			line, _ := data["line"].(string)
			source, _ := data["source"].(string)
			fmt.Fprintf(b, "│ %-24s \x1b[1m%s()\x1b[0m\n", source+":"+line, funcn)
		}
	}
	return nil
}

// NewConsoleWriter pretty prints to terminals and writes raw JSON lines otherwise.
func NewConsoleWriter(f io.Writer) LevelWriter {
	file, ok := f.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) || *config.Dumb {
		return zerolog.LevelWriterAdapter{Writer: f}
	}
	consoleWriter := &zerolog.ConsoleWriter{
		Out:             f,
		FormatTimestamp: formatTimestamp,
		FormatCaller:    formatDomain,
		FieldsExclude:   []string{zerolog.ErrorStackFieldName},
		FormatExtra:     formatStack,
	}
	if !*config.Verbose {
		return &zerolog.FilteredLevelWriter{
			Level:  LevelInfo,
			Writer: zerolog.LevelWriterAdapter{Writer: consoleWriter},
		}
	}
	return zerolog.LevelWriterAdapter{Writer: consoleWriter}
}
func StdoutWriter() LevelWriter { return NewConsoleWriter(os.Stdout) }
func StderrWriter() LevelWriter { return NewConsoleWriter(os.Stderr) }
