package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gwillem/polargraph/pkg/simulator"
)

func testConfig() Config {
	cfg := DefaultConfig("sim")
	cfg.Timeout = 100 * time.Millisecond
	cfg.SettleDelay = 0
	return cfg
}

func TestLink_Request(t *testing.T) {
	dev := simulator.New()
	l := New(dev, testConfig(), nil)
	defer l.Close()

	tests := []struct {
		command string
		want    string
	}{
		{"Q", "acam3"},
		{"P", "P:0:0"},
		{"G:10:-10", "G"},
		{"V:100:50", "V"},
		{"V", "V:100:50"},
		{"S", "S"},
	}

	for _, tt := range tests {
		got, err := l.Request(context.Background(), tt.command)
		if err != nil {
			t.Fatalf("Request(%q) error: %v", tt.command, err)
		}
		if got != tt.want {
			t.Errorf("Request(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestLink_RequestTimeout(t *testing.T) {
	dev := simulator.New()
	dev.Mute("P")
	l := New(dev, testConfig(), nil)
	defer l.Close()

	start := time.Now()
	_, err := l.Request(context.Background(), "P")
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Request(P) error = %v, want ErrNoResponse", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Request(P) took %s, want about %s", elapsed, testConfig().Timeout)
	}
}

func TestLink_RequestMalformed(t *testing.T) {
	dev := simulator.New()
	dev.Garble("R")
	l := New(dev, testConfig(), nil)
	defer l.Close()

	_, err := l.Request(context.Background(), "R")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Request(R) error = %v, want ErrMalformed", err)
	}
}

func TestLink_RequestCanceled(t *testing.T) {
	dev := simulator.New()
	dev.Mute("R")
	cfg := testConfig()
	cfg.Timeout = 10 * time.Second
	l := New(dev, cfg, nil)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Request(ctx, "R")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Request(R) error = %v, want context.DeadlineExceeded", err)
	}
}

func TestLink_Closed(t *testing.T) {
	l := New(simulator.New(), testConfig(), nil)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := l.Request(context.Background(), "Q"); !errors.Is(err, ErrClosed) {
		t.Errorf("Request after Close error = %v, want ErrClosed", err)
	}
	// Closing twice is harmless
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestLink_Identify(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"acam3", true},
		{"acam3.1", true},
		{"acam2", false},
	}

	for _, tt := range tests {
		dev := simulator.New()
		dev.Version = tt.version
		l := New(dev, testConfig(), nil)

		got, err := l.Identify(context.Background())
		if err != nil {
			t.Fatalf("Identify() with %q error: %v", tt.version, err)
		}
		if got != tt.want {
			t.Errorf("Identify() with %q = %v, want %v", tt.version, got, tt.want)
		}
		l.Close()
	}
}

func TestLink_IdentifySilent(t *testing.T) {
	dev := simulator.New()
	dev.Mute("Q")
	l := New(dev, testConfig(), nil)
	defer l.Close()

	ok, err := l.Identify(context.Background())
	if ok || !errors.Is(err, ErrNoResponse) {
		t.Errorf("Identify() = %v, %v; want false, ErrNoResponse", ok, err)
	}
}

// chunkPort delivers a scripted reply a few bytes at a time.
type chunkPort struct {
	mu      sync.Mutex
	pending []string
	written []string
}

func (p *chunkPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, string(b))
	return len(b), nil
}

func (p *chunkPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending[0])
	p.pending = p.pending[1:]
	return n, nil
}

func (p *chunkPort) Close() error { return nil }

func TestLink_RequestFragmented(t *testing.T) {
	port := &chunkPort{pending: []string{"P:12", "3:-4", "5\r", "\n"}}
	l := New(port, testConfig(), nil)

	got, err := l.Request(context.Background(), "P")
	if err != nil {
		t.Fatalf("Request(P) error: %v", err)
	}
	if got != "P:123:-45" {
		t.Errorf("Request(P) = %q, want %q", got, "P:123:-45")
	}
	if len(port.written) != 1 || port.written[0] != "P\n" {
		t.Errorf("written = %q, want [\"P\\n\"]", port.written)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		line   string
		tag    string
		fields int
		ok     bool
	}{
		{"G", "G", 0, true},
		{"R:1", "R", 1, true},
		{"P:-12:340", "P", 2, true},
		{"V:400:133.5", "V", 2, true},
		{"acam3", "acam3", 0, true},
		{"", "", 0, false},
		{":1:2", "", 0, false},
		{"P::2", "", 0, false},
		{"P:1:", "", 0, false},
		{"?#!", "", 0, false},
	}

	for _, tt := range tests {
		r, err := ParseReply(tt.line)
		if tt.ok != (err == nil) {
			t.Errorf("ParseReply(%q) error = %v, want ok=%v", tt.line, err, tt.ok)
			continue
		}
		if !tt.ok {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("ParseReply(%q) error = %v, want ErrMalformed", tt.line, err)
			}
			continue
		}
		if r.Tag != tt.tag || len(r.Fields) != tt.fields {
			t.Errorf("ParseReply(%q) = %+v, want tag %q with %d fields", tt.line, r, tt.tag, tt.fields)
		}
	}
}
