//go:build !nogpu

package tilebin

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/tilebin/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that expose their HAL
// objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// GPUBinner runs the compact strategy as compute shaders on a shared
// device: bounds, scatter, a four pass radix sort and range resolve.
//
// The device and queue belong to the provider. Close releases only the
// pipelines and buffers created here.
type GPUBinner struct {
	mu         sync.Mutex
	dispatcher *gpu.Dispatcher
}

// NewGPUBinner creates the binning pipelines on provider's device. The
// provider must implement HalDevice() any and HalQueue() any returning a
// hal.Device and a hal.Queue.
func NewGPUBinner(provider gpucontext.DeviceProvider) (*GPUBinner, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL device", ErrGPUUnavailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrGPUUnavailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrGPUUnavailable)
	}
	return newGPUBinner(device, queue)
}

func newGPUBinner(device hal.Device, queue hal.Queue) (*GPUBinner, error) {
	d := gpu.NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		return nil, fmt.Errorf("tilebin: init GPU binner: %w", err)
	}
	slogger().Info("tilebin: GPU binner attached to shared device")
	return &GPUBinner{dispatcher: d}, nil
}

// Bin bins cmds on the device and returns the compact index. It matches
// Binner.Bin with StrategyCompact for every well-formed frame.
//
// A frame whose tile and primitive indices need more than 32 key bits
// fails with an error wrapping gpu.ErrKeyOverflow.
func (g *GPUBinner) Bin(cfg FrameConfig, cmds CommandList, metrics []GlyphMetrics) (*CompactIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cmds) != cfg.NumPrimitives {
		return nil, fmt.Errorf("%w: %d != %d", ErrSourceLength, len(cmds), cfg.NumPrimitives)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dispatcher == nil {
		return nil, ErrClosed
	}

	dc := gpu.Config{
		ScreenWidth:  uint32(cfg.ScreenResolution.X),
		ScreenHeight: uint32(cfg.ScreenResolution.Y),
		TilesX:       uint32(cfg.TileResolution.X),
		TilesY:       uint32(cfg.TileResolution.Y),
		NumPrims:     uint32(cfg.NumPrimitives),
		SortCapacity: uint32(cfg.SortCapacity),
	}
	if cfg.NumPrimitives > 1 {
		dc.PrimBits = uint32(bits.Len(uint(cfg.NumPrimitives - 1)))
	}

	out, err := g.dispatcher.Run(dc, cmds.Words(), metricWords(metrics))
	if err != nil {
		return nil, err
	}
	if out.Overflow {
		slogger().Warn("tilebin: GPU sort scratch overflow", "requested", out.Entries, "capacity", cfg.SortCapacity)
		return nil, fmt.Errorf("%w: %d hits > capacity %d", ErrScratchOverflow, out.Entries, cfg.SortCapacity)
	}

	ranges := make([]TileRange, cfg.Tiles())
	for t := range ranges {
		ranges[t] = TileRange{Min: out.Ranges[2*t], Max: out.Ranges[2*t+1]}
	}
	list := make([]uint32, len(out.Values))
	copy(list, out.Values)
	return NewCompactIndex(cfg.TileResolution, TileSize, ranges, list), nil
}

// Close releases the pipelines. Bin returns ErrClosed afterwards.
func (g *GPUBinner) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dispatcher != nil {
		g.dispatcher.Close()
		g.dispatcher = nil
	}
}

// metricWords flattens metrics into gpu.MetricsStride words each.
func metricWords(metrics []GlyphMetrics) []uint32 {
	words := make([]uint32, 0, len(metrics)*gpu.MetricsStride)
	for _, m := range metrics {
		words = append(words,
			uint32(int32(m.AtlasMin.X)), uint32(int32(m.AtlasMin.Y)),
			uint32(int32(m.AtlasMax.X)), uint32(int32(m.AtlasMax.Y)),
			math.Float32bits(m.OffsetMin.X), math.Float32bits(m.OffsetMin.Y),
			math.Float32bits(m.OffsetMax.X), math.Float32bits(m.OffsetMax.Y),
		)
	}
	return words
}

// ValidateShaders compiles every binning stage to SPIR-V without a device.
func ValidateShaders() error {
	var errs []error
	for s := range gpu.StageCount {
		if _, err := gpu.CompileSPIRV(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func propagateLogger(l *slog.Logger) {
	gpu.SetLogger(l)
}
