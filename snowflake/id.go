package snowflake

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/host"
)

// IDs are laid out as | 42 bits of milliseconds since EpochBegin | 10 bits machine | 12 bits sequence |.
const (
	EpochBegin     = int64(1704067200000) // 2024-01-01T00:00:00Z
	SeqMask        = uint64(0xFFF)
	MachineIDShift = 12
	MachineIDMask  = uint64(0x3FF000)
	TimestampShift = 22
)

type ID uint64

type Generator struct {
	MachineID uint32
	Sequence  atomic.Uint32
}

func (g *Generator) NextAt(t time.Time) ID {
	return FromParts(g.MachineID, g.Sequence.Add(1), t.UnixMilli())
}
func (g *Generator) Next() ID {
	return g.NextAt(time.Now())
}

var DefaultGenerator = &Generator{}

func init() {
	var buf [4]byte
	lo.Must(rand.Read(buf[:]))
	DefaultGenerator.Sequence.Store(binary.LittleEndian.Uint32(buf[:]))

	i, _ := host.Info()
	if i == nil {
		return
	}
	hash := sha1.Sum([]byte(i.HostID + i.Hostname))
	DefaultGenerator.MachineID = binary.BigEndian.Uint32(hash[:4]) << MachineIDShift
}

// New returns a process-unique, time ordered ID.
func New() ID {
	return DefaultGenerator.Next()
}

func FromParts(machineID uint32, seq uint32, unixMilli int64) ID {
	v := uint64(machineID) & MachineIDMask
	v |= uint64(seq) & SeqMask
	v |= uint64(unixMilli-EpochBegin) << TimestampShift
	return ID(v)
}

func (value ID) String() string {
	return strconv.FormatUint(uint64(value), 36)
}
func (value ID) Sequence() uint32 {
	return uint32(uint64(value) & SeqMask)
}
func (value ID) Timestamp() time.Time {
	return time.UnixMilli(int64(uint64(value)>>TimestampShift) + EpochBegin)
}
func (value ID) MarshalText() ([]byte, error) {
	return []byte(value.String()), nil
}
