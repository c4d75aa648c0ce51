package ui

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"strings"

	"get.pme.sh/wsjrpc/config"
	"get.pme.sh/wsjrpc/jrpc"

	"github.com/alecthomas/chroma/v2/quick"
)

// Displayer is an interface for displaying a string.
type Displayer interface {
	Display() string
}

func Display(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case Displayer:
		return v.Display()
	case *jrpc.Error:
		s := fmt.Sprintf("%s %s", FaintStyle.Render(fmt.Sprintf("[%d]", v.Code)), v.Message)
		if len(v.Data) != 0 {
			s += " " + FaintStyle.Render(string(v.Data))
		}
		return s
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	case encoding.TextMarshaler:
		if b, err := v.MarshalText(); err == nil {
			return string(b)
		}
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("[%T?]", v)
}

// HighlightJSON indents raw and colors it for the terminal, unless the output is dumb.
func HighlightJSON(raw []byte) string {
	buf := &bytes.Buffer{}
	if err := json.Indent(buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	if *config.Dumb {
		return buf.String()
	}
	out := &strings.Builder{}
	if err := quick.Highlight(out, buf.String(), "json", "terminal256", "monokai"); err != nil {
		return buf.String()
	}
	return out.String()
}
