package revision

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	VersionString = "v0.1" // Only updated for major/minor releases.
)

type buildInfo struct {
	commit string
	dirty  bool
}

func readBuildInfo() (b buildInfo) {
	b.commit = "00000000"
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) > 8 {
					b.commit = setting.Value[:8]
				}
			case "vcs.modified":
				b.dirty = setting.Value == "true"
			}
		}
	}
	return
}

// GetVersion returns the release followed by the commit, e.g. v0.1-1a2b3c4d.
var GetVersion = sync.OnceValue(func() string {
	b := readBuildInfo()
	v := fmt.Sprintf("%s-%s", VersionString, b.commit)
	if b.dirty {
		v += "-dirty"
	}
	return v
})

// UserAgent identifies the client in websocket handshakes.
func UserAgent() string {
	return fmt.Sprintf("wsjrpc/%s (%s; %s)", GetVersion(), runtime.GOOS, runtime.GOARCH)
}
