package tilebin

import (
	"bytes"
	"context"
	"image"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// captureLogs installs a debug-level text logger for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger enabled for %v", level)
		}
	}

	h := nopHandler{}
	if _, ok := h.WithAttrs(nil).(nopHandler); !ok {
		t.Error("WithAttrs dropped the nop handler")
	}
	if _, ok := h.WithGroup("g").(nopHandler); !ok {
		t.Error("WithGroup dropped the nop handler")
	}
}

func TestSetLogger_BinnerOutput(t *testing.T) {
	buf := captureLogs(t)

	cmds := CommandList{
		EncodeRect(RectAt(Vec2{20, 20}, Vec2{8, 8})),
		{Tag: 99},
	}
	b := newTestBinner(t, StrategyCompact)
	cfg := NewFrameConfig(image.Pt(64, 64), image.Point{}, cmds.Len(), WithPrimitiveCapacity(1024))
	if _, err := b.Bin(cfg, cmds, nil); err != nil {
		t.Fatalf("Bin: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"tilebin: binner created",
		"tilebin: primitives dropped",
		"count=1",
		"tilebin: frame binned",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSetLoggerNilRestoresSilent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)

	l := Logger()
	if l == nil {
		t.Fatal("SetLogger(nil) stored nil")
	}
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) left an enabled logger")
	}
}

func TestLoggerSwapDuringBin(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	s := randomStore(3, 500, 320, 240)
	b := newTestBinner(t, StrategyCompact)
	cfg := NewFrameConfig(image.Pt(320, 240), image.Point{}, s.Len(), WithPrimitiveCapacity(1024))

	var wg sync.WaitGroup
	wg.Go(func() {
		for range 50 {
			SetLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
			SetLogger(nil)
		}
	})
	for range 10 {
		if _, err := b.Bin(cfg, s, testMetrics()); err != nil {
			t.Errorf("Bin: %v", err)
		}
	}
	wg.Wait()
}

func BenchmarkLoggerDisabledLog(b *testing.B) {
	l := Logger()
	b.ReportAllocs()
	for b.Loop() {
		l.Debug("tilebin: frame binned", "entries", 42)
	}
}
