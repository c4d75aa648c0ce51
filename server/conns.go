package server

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"get.pme.sh/wsjrpc/snowflake"
	"github.com/samber/lo"
)

// ConnInfo describes a live connection.
type ConnInfo struct {
	ID     snowflake.ID `json:"id"`
	Proto  string       `json:"proto"`
	Remote string       `json:"remote"`
	Since  time.Time    `json:"since"`
}

type connTable struct {
	mu    sync.Mutex
	conns map[snowflake.ID]ConnInfo
}

func (t *connTable) add(info ConnInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		t.conns = make(map[snowflake.ID]ConnInfo)
	}
	t.conns[info.ID] = info
}

func (t *connTable) remove(id snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

func (t *connTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// list returns the connections, oldest first.
func (t *connTable) list() []ConnInfo {
	t.mu.Lock()
	res := lo.Values(t.conns)
	t.mu.Unlock()
	slices.SortFunc(res, func(a, b ConnInfo) int { return cmp.Compare(a.ID, b.ID) })
	return res
}
