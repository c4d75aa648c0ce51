package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"get.pme.sh/wsjrpc/rate"
	"get.pme.sh/wsjrpc/util"
)

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
listen: 0.0.0.0:9000
path: /rpc
queue_size: 8
read_limit: 1mib
handshake_timeout: 2s
connect_rate: 10/s
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen != "0.0.0.0:9000" || c.Path != "/rpc" || c.QueueSize != 8 {
		t.Fatalf("got %+v", c)
	}
	if c.ReadLimit != util.Size(1<<20) || time.Duration(c.HandshakeTimeout) != 2*time.Second {
		t.Fatalf("got %+v", c)
	}

	if c.ConnectRate != (rate.Rate{Count: 10, Period: time.Second}) {
		t.Fatalf("got rate %v", c.ConnectRate)
	}

	if _, err := Parse([]byte("listen: x\nlisten_port: 1\n")); err == nil {
		t.Fatal("unknown key accepted")
	}
	if c, err := Parse(nil); err != nil || c.Listen != "" {
		t.Fatalf("empty document: %+v, %v", c, err)
	}
}

func TestDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	if c.Listen != DefaultListen || c.Path != DefaultPath || c.QueueSize != DefaultQueueSize || c.ReadLimit != DefaultReadLimit {
		t.Fatalf("got %+v", c)
	}
	if c.HandshakeTimeout.IsZero() || c.WriteTimeout.IsZero() || c.ShutdownTimeout.IsZero() {
		t.Fatalf("timeouts left unset: %+v", c)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wsjrpc.yml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:1\nqueue_size: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("WSJRPC_TCP=127.0.0.1:7000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WSJRPC_TCP") })
	t.Setenv("WSJRPC_QUEUE_SIZE", "16")

	c, err := Load(path, envFile)
	if err != nil {
		t.Fatal(err)
	}
	if c.Listen != "127.0.0.1:1" {
		t.Errorf("file value lost: %q", c.Listen)
	}
	if c.QueueSize != 16 {
		t.Errorf("environment did not override the file: %d", c.QueueSize)
	}
	if c.TCP != "127.0.0.1:7000" {
		t.Errorf("dotenv value lost: %q", c.TCP)
	}
	if c.Path != DefaultPath {
		t.Errorf("default not applied: %q", c.Path)
	}
	if Get() != c {
		t.Error("loaded configuration not stored")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml"), ""); err == nil {
		t.Error("missing file accepted")
	}
	t.Setenv("WSJRPC_QUEUE_SIZE", "many")
	_, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	if err == nil || !strings.Contains(err.Error(), "QUEUE_SIZE") {
		t.Errorf("got %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yml")
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	c, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	var want Config
	want.SetDefaults()
	if c != want {
		t.Fatalf("got %+v, want %+v", c, want)
	}
}
