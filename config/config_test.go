package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dustin/go-humanize"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want ByteSize
		ok   bool
	}{
		{"1400", 1400, true},
		{"25MB", 25_000_000, true},
		{"25mb/s", 25_000_000, true},
		{"16MiB", 16 << 20, true},
		{"1.5k", 1500, true},
		{"2 GiB", 2 << 30, true},
		{"12b", 12, true},
		{"fast", 0, false},
		{"-1MB", 0, false},
	}
	for _, test := range tests {
		got, err := ParseByteSize(test.in)
		if (err == nil) != test.ok {
			t.Fatalf("%q: unexpected error state: %v", test.in, err)
		}
		if got != test.want {
			t.Fatalf("%q: got %d, want %d", test.in, got, test.want)
		}
	}
}

func TestByteSizeString(t *testing.T) {
	for in, want := range map[ByteSize]string{
		1400:       "1.4 kB",
		25_000_000: "25 MB",
	} {
		if got := in.String(); got != want {
			t.Fatalf("%d: got %q, want %q", in, got, want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qnet.yaml")
	fatal(os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644), t)

	cfg, err := Load(path)
	fatal(err, t)
	if cfg.Network.Bandwidth != 25*humanize.MByte {
		t.Fatalf("bandwidth %d", cfg.Network.Bandwidth)
	}
	if cfg.Network.Tick != 10*time.Millisecond {
		t.Fatalf("tick %s", cfg.Network.Tick)
	}
	if cfg.Network.AllocBlock != 16*humanize.MiByte {
		t.Fatalf("alloc block %d", cfg.Network.AllocBlock)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level %q", cfg.Log.Level)
	}
	if cfg.Network.Codec != "cbor" {
		t.Fatalf("codec %q", cfg.Network.Codec)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qnet.yaml")
	yaml := `
network:
  listen:
    - tcp://127.0.0.1:0
    - mpsc://node-a
  bandwidth: 10MB
  tick: 5ms
  codec: JSON
metrics:
  enable: true
`
	fatal(os.WriteFile(path, []byte(yaml), 0o644), t)
	t.Setenv("QNET_NETWORK_ALLOC_BLOCK", "64KiB")
	t.Setenv("QNET_NETWORK_WRITE_TIMEOUT", "3ms")

	cfg, err := Load(path)
	fatal(err, t)
	if len(cfg.Network.Listen) != 2 || cfg.Network.Listen[1] != "mpsc://node-a" {
		t.Fatalf("listen %v", cfg.Network.Listen)
	}
	if cfg.Network.Bandwidth != 10*humanize.MByte {
		t.Fatalf("bandwidth %d", cfg.Network.Bandwidth)
	}
	if cfg.Network.Tick != 5*time.Millisecond {
		t.Fatalf("tick %s", cfg.Network.Tick)
	}
	if cfg.Network.AllocBlock != 64*humanize.KiByte {
		t.Fatalf("alloc block %d", cfg.Network.AllocBlock)
	}
	if cfg.Network.WriteTimeout != 3*time.Millisecond {
		t.Fatalf("write timeout %s", cfg.Network.WriteTimeout)
	}
	if cfg.Network.Codec != "json" {
		t.Fatalf("codec %q", cfg.Network.Codec)
	}
	if !cfg.Metrics.Enable {
		t.Fatal("metrics not enabled")
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qnet.yaml")
	fatal(os.WriteFile(path, []byte("network:\n  codec: xml\n"), 0o644), t)
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid codec error")
	}
	fatal(os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644), t)
	if _, err := Load(path); err == nil {
		t.Fatal("expected invalid log level error")
	}
}
