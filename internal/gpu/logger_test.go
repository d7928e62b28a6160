//go:build !nogpu

package gpu

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestDispatcherLogging(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	d := NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	out := buf.String()
	if !strings.Contains(out, "gpu: binning pipelines initialized") {
		t.Errorf("missing init line:\n%s", out)
	}
	if n := strings.Count(out, "gpu: pipeline created"); n != int(StageCount) {
		t.Errorf("pipeline lines = %d, want %d", n, StageCount)
	}
}

func TestSetLoggerNilDiscards(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(slog.Default())
	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelError) {
		t.Error("SetLogger(nil) left an enabled logger")
	}
}
