package motors

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/polargraph/pkg/kinematics"
	"github.com/gwillem/polargraph/pkg/link"
	"github.com/gwillem/polargraph/pkg/simulator"
)

// scripted answers each command with a fixed reply.
type scripted struct {
	replies map[string]string
	sent    []string
}

func (s *scripted) Request(ctx context.Context, command string) (string, error) {
	s.sent = append(s.sent, command)
	res, ok := s.replies[command]
	if !ok {
		return "", link.ErrNoResponse
	}
	if _, err := link.ParseReply(res); err != nil {
		return res, err
	}
	return res, nil
}

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func newSimulated(t *testing.T) (*Pair, *simulator.Device) {
	t.Helper()
	dev := simulator.New()
	cfg := link.DefaultConfig("sim")
	cfg.Timeout = 100 * time.Millisecond
	l := link.New(dev, cfg, nil)
	t.Cleanup(func() { l.Close() })
	return New(l, nil), dev
}

func TestPair_WireCommands(t *testing.T) {
	ctx := context.Background()
	s := &scripted{replies: map[string]string{
		"G:12:-7":   "G",
		"S":         "S",
		"X":         "X",
		"P:3:4":     "P",
		"V:400:100": "V",
		"A:800.5:0": "A",
	}}
	p := New(s, nil)

	if err := p.Goto(ctx, kinematics.Indexes{N1: 12, N2: -7}); err != nil {
		t.Errorf("Goto() error: %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Errorf("Stop() error: %v", err)
	}
	if err := p.Release(ctx); err != nil {
		t.Errorf("Release() error: %v", err)
	}
	if err := p.SetIndexes(ctx, kinematics.Indexes{N1: 3, N2: 4}); err != nil {
		t.Errorf("SetIndexes() error: %v", err)
	}
	if err := p.SetSpeeds(ctx, kinematics.Speeds{V1: 400, V2: 100}); err != nil {
		t.Errorf("SetSpeeds() error: %v", err)
	}
	if err := p.SetAcceleration(ctx, kinematics.Speeds{V1: 800.5, V2: 0}); err != nil {
		t.Errorf("SetAcceleration() error: %v", err)
	}

	want := []string{"G:12:-7", "S", "X", "P:3:4", "V:400:100", "A:800.5:0"}
	if len(s.sent) != len(want) {
		t.Fatalf("sent %q, want %q", s.sent, want)
	}
	for i := range want {
		if s.sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, s.sent[i], want[i])
		}
	}
}

func TestPair_Getters(t *testing.T) {
	ctx := context.Background()
	s := &scripted{replies: map[string]string{
		"R": "R:1",
		"P": "P:-120:455",
		"V": "V:400:133.25",
	}}
	p := New(s, nil)

	running, err := p.Running(ctx)
	if err != nil || !running {
		t.Errorf("Running() = %v, %v; want true, nil", running, err)
	}
	n, err := p.Indexes(ctx)
	if err != nil || n != (kinematics.Indexes{N1: -120, N2: 455}) {
		t.Errorf("Indexes() = %v, %v; want {-120 455}, nil", n, err)
	}
	v, err := p.Speeds(ctx)
	if err != nil || v != (kinematics.Speeds{V1: 400, V2: 133.25}) {
		t.Errorf("Speeds() = %v, %v; want {400 133.25}, nil", v, err)
	}
}

func TestPair_GetterDefaults(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"wrong tag", "Q:1:2"},
		{"missing field", "P:1"},
		{"not a number", "P:one:two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := newObserved()
			s := &scripted{replies: map[string]string{"P": tt.reply, "R": tt.reply, "V": tt.reply}}
			p := New(s, log)

			n, err := p.Indexes(ctx)
			if err == nil {
				t.Errorf("Indexes() error = nil, want failure")
			}
			if n != (kinematics.Indexes{}) {
				t.Errorf("Indexes() = %v, want {0 0}", n)
			}

			running, err := p.Running(ctx)
			if err == nil || running {
				t.Errorf("Running() = %v, %v; want false, error", running, err)
			}

			v, err := p.Speeds(ctx)
			if err == nil || v != (kinematics.Speeds{}) {
				t.Errorf("Speeds() = %v, %v; want {0 0}, error", v, err)
			}

			if got := logs.FilterLevelExact(zapcore.WarnLevel).Len(); got != 3 {
				t.Errorf("logged %d warnings, want 3", got)
			}
		})
	}
}

func TestPair_NotAcknowledged(t *testing.T) {
	ctx := context.Background()
	log, logs := newObserved()
	s := &scripted{replies: map[string]string{"G:5:5": "S", "X": "G"}}
	p := New(s, log)

	err := p.Goto(ctx, kinematics.Indexes{N1: 5, N2: 5})
	if !errors.Is(err, ErrNotAcknowledged) {
		t.Errorf("Goto() error = %v, want ErrNotAcknowledged", err)
	}
	pending, ok := p.Pending()
	if !ok || pending != (kinematics.Indexes{N1: 5, N2: 5}) {
		t.Errorf("Pending() = %v, %v; want {5 5}, true", pending, ok)
	}

	if err := p.Release(ctx); !errors.Is(err, ErrNotAcknowledged) {
		t.Errorf("Release() error = %v, want ErrNotAcknowledged", err)
	}
	if got := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); got != 2 {
		t.Errorf("logged %d errors, want 2", got)
	}

	// A later successful goto clears the pending target
	s.replies["G:6:6"] = "G"
	if err := p.Goto(ctx, kinematics.Indexes{N1: 6, N2: 6}); err != nil {
		t.Fatalf("Goto() error: %v", err)
	}
	if _, ok := p.Pending(); ok {
		t.Error("Pending() after acknowledged goto = true, want false")
	}
}

func TestPair_AccelerationCachedOnFailure(t *testing.T) {
	s := &scripted{replies: map[string]string{}}
	p := New(s, nil)

	a := kinematics.Speeds{V1: 1000, V2: 1000}
	if err := p.SetAcceleration(context.Background(), a); !errors.Is(err, link.ErrNoResponse) {
		t.Errorf("SetAcceleration() error = %v, want ErrNoResponse", err)
	}
	if got := p.Acceleration(); got != a {
		t.Errorf("Acceleration() = %v, want %v", got, a)
	}
}

func TestPair_Simulated(t *testing.T) {
	ctx := context.Background()
	p, dev := newSimulated(t)

	if err := p.SetSpeeds(ctx, kinematics.Speeds{V1: 1000, V2: 1000}); err != nil {
		t.Fatalf("SetSpeeds() error: %v", err)
	}
	target := kinematics.Indexes{N1: 120, N2: -80}
	if err := p.Goto(ctx, target); err != nil {
		t.Fatalf("Goto() error: %v", err)
	}

	for i := 0; i < 100; i++ {
		running, err := p.Running(ctx)
		if err != nil {
			t.Fatalf("Running() error: %v", err)
		}
		if !running {
			break
		}
	}

	n, err := p.Indexes(ctx)
	if err != nil {
		t.Fatalf("Indexes() error: %v", err)
	}
	if n != target {
		t.Errorf("Indexes() = %v, want %v", n, target)
	}
	if !dev.Energized() {
		t.Error("device not energized after goto")
	}
	if err := p.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if dev.Energized() {
		t.Error("device energized after release")
	}
}

func TestPair_SimulatedMalformedPosition(t *testing.T) {
	p, dev := newSimulated(t)
	dev.Garble("P")

	n, err := p.Indexes(context.Background())
	if !errors.Is(err, link.ErrMalformed) {
		t.Errorf("Indexes() error = %v, want ErrMalformed", err)
	}
	if n != (kinematics.Indexes{}) {
		t.Errorf("Indexes() = %v, want {0 0}", n)
	}
}
