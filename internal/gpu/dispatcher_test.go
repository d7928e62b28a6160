//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func testConfig() Config {
	return Config{
		ScreenWidth:  256,
		ScreenHeight: 256,
		TilesX:       16,
		TilesY:       16,
		NumPrims:     2,
		PrimBits:     1,
		SortCapacity: 1 << 12,
	}
}

func TestConfigToBytes(t *testing.T) {
	cfg := testConfig()
	buf := cfg.toBytes()
	if len(buf) != 48 {
		t.Fatalf("len = %d, want 48", len(buf))
	}

	le := binary.LittleEndian
	fields := []struct {
		name   string
		offset int
		want   uint32
	}{
		{"ScreenWidth", 0, 256},
		{"ScreenHeight", 4, 256},
		{"TilesX", 8, 16},
		{"TilesY", 12, 16},
		{"NumPrims", 16, 2},
		{"PrimBits", 20, 1},
		{"SortCapacity", 24, 1 << 12},
		{"NumMetrics", 28, 0},
		{"Chunks", 32, 1},
		{"pad", 36, 0},
	}
	for _, f := range fields {
		if got := le.Uint32(buf[f.offset:]); got != f.want {
			t.Errorf("%s = %d, want %d", f.name, got, f.want)
		}
	}
}

func TestConfigKeyBits(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want int
	}{
		{"small", Config{TilesX: 16, TilesY: 16, PrimBits: 1}, 9},
		{"single tile", Config{TilesX: 1, TilesY: 1, PrimBits: 18}, 18},
		{"1080p full", Config{TilesX: 120, TilesY: 68, PrimBits: 18}, 31},
		{"4k full", Config{TilesX: 240, TilesY: 135, PrimBits: 18}, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.KeyBits(); got != tt.want {
				t.Errorf("KeyBits() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		stage    Stage
		elements uint32
		want     uint32
	}{
		{StageClear, 0, 0},
		{StageClear, 1, 1},
		{StageBounds, 256, 1},
		{StageBounds, 257, 2},
		{StageScatter, 5000, 20},
		{StageUpsweep, 4096, 1},
		{StageUpsweep, 4097, 2},
		{StageDownsweep, 1 << 20, 256},
		{StageSpine, 1 << 20, 1},
		{StageResolve, 8160, 1},
		{StageResolve, 0, 0},
	}
	for _, tt := range tests {
		if got := WorkgroupCount(tt.stage, tt.elements); got != tt.want {
			t.Errorf("WorkgroupCount(%s, %d) = %d, want %d", tt.stage, tt.elements, got, tt.want)
		}
	}
}

func TestStageString(t *testing.T) {
	for s := Stage(0); s < StageCount; s++ {
		if strings.HasPrefix(s.String(), "Unknown") {
			t.Errorf("stage %d has no name", int(s))
		}
		if ShaderSource(s) == "" {
			t.Errorf("stage %s has no shader", s)
		}
	}
	if got := StageCount.String(); got != "Unknown(7)" {
		t.Errorf("StageCount.String() = %q", got)
	}
	if ShaderSource(StageCount) != "" {
		t.Error("ShaderSource(StageCount) should be empty")
	}
}

func TestBindingsMatchShaders(t *testing.T) {
	for s := Stage(0); s < StageCount; s++ {
		src := ShaderSource(s)
		entries := stageBindGroupLayoutEntries(s)
		if got := strings.Count(src, "@binding("); got != len(entries) {
			t.Errorf("%s: shader declares %d bindings, layout has %d", s, got, len(entries))
		}
		for _, e := range entries {
			uniform := e.Buffer.Type == gputypes.BufferBindingTypeUniform
			decl := "@binding(" + string(rune('0'+e.Binding)) + ") var<uniform>"
			if uniform != strings.Contains(src, decl) {
				t.Errorf("%s: binding %d uniform=%v disagrees with shader", s, e.Binding, uniform)
			}
		}
	}
}

func TestPlan(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	cfg := testConfig()
	b, err := d.allocate(cfg, make([]uint32, int(cfg.NumPrims)*CmdStride), nil)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	defer d.destroyBuffers(b)

	passes := plan(cfg, b)
	want := 3 + 3*Passes + 1
	if len(passes) != want {
		t.Fatalf("len(plan) = %d, want %d", len(passes), want)
	}
	if passes[0].stage != StageClear || passes[len(passes)-1].stage != StageResolve {
		t.Errorf("plan starts with %s and ends with %s", passes[0].stage, passes[len(passes)-1].stage)
	}
	// Each sort pass is three separate dispatches; no stage waits on
	// another workgroup within a dispatch.
	for pass := range Passes {
		got := passes[3+3*pass : 6+3*pass]
		if got[0].stage != StageUpsweep || got[1].stage != StageSpine || got[2].stage != StageDownsweep {
			t.Errorf("pass %d stages = %s, %s, %s", pass, got[0].stage, got[1].stage, got[2].stage)
		}
	}
	for _, p := range passes {
		if got, want := len(p.entries), len(stageBindGroupLayoutEntries(p.stage)); got != want {
			t.Errorf("%s: %d bind entries, layout has %d", p.label, got, want)
		}
		if p.workgroups == 0 {
			t.Errorf("%s: no workgroups", p.label)
		}
	}
}

func TestDispatcherInitClose(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	if d.Initialized() {
		t.Fatal("new dispatcher should not be initialized")
	}
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !d.Initialized() {
		t.Fatal("dispatcher should be initialized")
	}
	for s := Stage(0); s < StageCount; s++ {
		if d.pipelines[s] == nil {
			t.Errorf("%s: missing pipeline", s)
		}
	}

	// Init is idempotent.
	if err := d.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	d.Close()
	if d.Initialized() {
		t.Fatal("closed dispatcher should not be initialized")
	}
	for s := Stage(0); s < StageCount; s++ {
		if d.pipelines[s] != nil || d.shaderModules[s] != nil {
			t.Errorf("%s: resources not released", s)
		}
	}
}

func TestDispatcherRunNotInitialized(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	if _, err := d.Run(testConfig(), make([]uint32, 16), nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Run before Init: err = %v, want ErrNotInitialized", err)
	}
}

func TestDispatcherRunKeyOverflow(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	cfg := Config{TilesX: 240, TilesY: 135, PrimBits: 18, SortCapacity: 1 << 12}
	if _, err := d.Run(cfg, nil, nil); !errors.Is(err, ErrKeyOverflow) {
		t.Errorf("err = %v, want ErrKeyOverflow", err)
	}
}

func TestDispatcherRunShortCommands(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if _, err := d.Run(testConfig(), make([]uint32, 8), nil); err == nil {
		t.Error("expected error for missing command words")
	}
}

func TestDispatcherRun(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	d := NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	cfg := testConfig()
	cmds := make([]uint32, int(cfg.NumPrims)*CmdStride)
	out, err := d.Run(cfg, cmds, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Ranges) != 2*int(cfg.Tiles()) {
		t.Errorf("len(Ranges) = %d, want %d", len(out.Ranges), 2*cfg.Tiles())
	}
}
