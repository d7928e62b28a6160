//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"honnef.co/go/safeish"
)

const (
	// WorkgroupSize is the workgroup size of every stage.
	WorkgroupSize = 256

	// ItemsPerWorkgroup is the number of sort entries per chunk.
	ItemsPerWorkgroup = 4096

	// Passes is the number of 8-bit digit passes over a 32-bit key.
	Passes = 4

	// CmdStride is the number of words per command record.
	CmdStride = 8

	// MetricsStride is the number of words per glyph metrics record:
	// atlas min x, y and max x, y as integers, then the offset box
	// min x, y and max x, y as float bits.
	MetricsStride = 8

	fenceTimeout = 5 * time.Second
)

var (
	// ErrNotInitialized is returned by Run before Init.
	ErrNotInitialized = errors.New("gpu: dispatcher not initialized")

	// ErrKeyOverflow is returned when tile and primitive indices do not fit
	// a 32-bit key together.
	ErrKeyOverflow = errors.New("gpu: sort key exceeds 32 bits")
)

// Config is the frame uniform shared by every stage. It mirrors the WGSL
// Config struct: twelve u32 fields, the last three padding.
type Config struct {
	ScreenWidth  uint32
	ScreenHeight uint32
	TilesX       uint32
	TilesY       uint32
	NumPrims     uint32
	PrimBits     uint32
	SortCapacity uint32
	NumMetrics   uint32
}

// Tiles returns the number of fine tiles.
func (c Config) Tiles() uint32 {
	return c.TilesX * c.TilesY
}

// Chunks returns the number of sort chunks covering SortCapacity.
func (c Config) Chunks() uint32 {
	return (c.SortCapacity + ItemsPerWorkgroup - 1) / ItemsPerWorkgroup
}

// KeyBits returns the width of the largest key the frame can produce.
func (c Config) KeyBits() int {
	if c.Tiles() == 0 {
		return int(c.PrimBits)
	}
	return bits.Len32(c.Tiles()-1) + int(c.PrimBits)
}

func (c Config) sizeInBytes() uint64 {
	return 12 * 4
}

// toBytes serializes the config in little-endian order.
func (c Config) toBytes() []byte {
	buf := make([]byte, c.sizeInBytes())
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], c.ScreenWidth)
	le.PutUint32(buf[4:8], c.ScreenHeight)
	le.PutUint32(buf[8:12], c.TilesX)
	le.PutUint32(buf[12:16], c.TilesY)
	le.PutUint32(buf[16:20], c.NumPrims)
	le.PutUint32(buf[20:24], c.PrimBits)
	le.PutUint32(buf[24:28], c.SortCapacity)
	le.PutUint32(buf[28:32], c.NumMetrics)
	le.PutUint32(buf[32:36], c.Chunks())
	return buf
}

// passBytes returns the PassInfo uniform of digit pass p.
func passBytes(p int) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, uint32(p*8))
	return buf
}

// Output is the readback of one Run.
type Output struct {
	// Entries is the number of (tile, primitive) hits, including any that
	// did not fit when Overflow is set.
	Entries uint32

	// Overflow reports that the hits exceeded the sort capacity. Ranges
	// and Values are not meaningful then.
	Overflow bool

	// Ranges holds [min, max) per tile, two words each.
	Ranges []uint32

	// Values holds the primitive indices sorted by (tile, primitive).
	Values []uint32
}

// buffers holds the device buffers of one Run.
type buffers struct {
	config  hal.Buffer
	passes  [Passes]hal.Buffer
	cmds    hal.Buffer
	metrics hal.Buffer
	boxes   hal.Buffer
	bump    hal.Buffer
	counts  hal.Buffer
	keysA   hal.Buffer
	valsA   hal.Buffer
	keysB   hal.Buffer
	valsB   hal.Buffer
	spine   hal.Buffer
	ranges  hal.Buffer
	staging hal.Buffer
}

func (b *buffers) all() []hal.Buffer {
	out := []hal.Buffer{
		b.config, b.cmds, b.metrics, b.boxes, b.bump, b.counts,
		b.keysA, b.valsA, b.keysB, b.valsB, b.spine, b.ranges, b.staging,
	}
	return append(out, b.passes[:]...)
}

// Dispatcher owns the compute pipelines of the binning stages.
type Dispatcher struct {
	mu sync.RWMutex

	device hal.Device
	queue  hal.Queue

	pipelines       [StageCount]hal.ComputePipeline
	pipelineLayouts [StageCount]hal.PipelineLayout
	bgLayouts       [StageCount]hal.BindGroupLayout
	shaderModules   [StageCount]hal.ShaderModule

	initialized bool
}

// NewDispatcher returns a dispatcher for device and queue. Init must be
// called before Run.
func NewDispatcher(device hal.Device, queue hal.Queue) *Dispatcher {
	return &Dispatcher{device: device, queue: queue}
}

// stageBindGroupLayoutEntries returns the layout entries of a stage. They
// match the @group(0) @binding(N) declarations of its shader.
func stageBindGroupLayoutEntries(stage Stage) []gputypes.BindGroupLayoutEntry {
	entry := func(binding uint32, typ gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	uniform := func(b uint32) gputypes.BindGroupLayoutEntry {
		return entry(b, gputypes.BufferBindingTypeUniform)
	}
	ro := func(b uint32) gputypes.BindGroupLayoutEntry {
		return entry(b, gputypes.BufferBindingTypeReadOnlyStorage)
	}
	rw := func(b uint32) gputypes.BindGroupLayoutEntry {
		return entry(b, gputypes.BufferBindingTypeStorage)
	}

	switch stage {
	case StageClear:
		// config, bump, tile_counts
		return []gputypes.BindGroupLayoutEntry{uniform(0), rw(1), rw(2)}
	case StageBounds:
		// config, cmds, metrics, boxes
		return []gputypes.BindGroupLayoutEntry{uniform(0), ro(1), ro(2), rw(3)}
	case StageScatter:
		// config, boxes, bump, tile_counts, keys, vals
		return []gputypes.BindGroupLayoutEntry{uniform(0), ro(1), rw(2), rw(3), rw(4), rw(5)}
	case StageUpsweep:
		// config, pass_info, bump, keys, spine
		return []gputypes.BindGroupLayoutEntry{uniform(0), uniform(1), ro(2), ro(3), rw(4)}
	case StageSpine:
		// config, spine
		return []gputypes.BindGroupLayoutEntry{uniform(0), rw(1)}
	case StageDownsweep:
		// config, pass_info, bump, src_keys, src_vals, spine, dst_keys, dst_vals
		return []gputypes.BindGroupLayoutEntry{
			uniform(0), uniform(1), ro(2), ro(3), ro(4), ro(5), rw(6), rw(7),
		}
	case StageResolve:
		// config, tile_counts, ranges
		return []gputypes.BindGroupLayoutEntry{uniform(0), ro(1), rw(2)}
	default:
		return nil
	}
}

// Init compiles every stage's shader and creates its pipeline. Calling Init
// again after success is a no-op. On failure, everything created so far is
// released.
func (d *Dispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	for i := Stage(0); i < StageCount; i++ {
		src := shaderSources[i]
		if src == "" {
			d.destroyPipelines(i)
			return fmt.Errorf("gpu: missing shader source for stage %s", i)
		}
		label := "tilebin_" + i.String()

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  label,
			Source: hal.ShaderSource{WGSL: src},
		})
		if err != nil {
			d.destroyPipelines(i)
			return fmt.Errorf("gpu: create shader module for %s: %w", i, err)
		}
		d.shaderModules[i] = module

		entries := stageBindGroupLayoutEntries(i)
		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   label + "_bgl",
			Entries: entries,
		})
		if err != nil {
			d.destroyPipelines(i + 1)
			return fmt.Errorf("gpu: create bind group layout for %s: %w", i, err)
		}
		d.bgLayouts[i] = bgLayout

		layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            label + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPipelines(i + 1)
			return fmt.Errorf("gpu: create pipeline layout for %s: %w", i, err)
		}
		d.pipelineLayouts[i] = layout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  label,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPipelines(i + 1)
			return fmt.Errorf("gpu: create compute pipeline for %s: %w", i, err)
		}
		d.pipelines[i] = pipeline

		slogger().Debug("gpu: pipeline created", "stage", i.String(), "bindings", len(entries))
	}

	slogger().Info("gpu: binning pipelines initialized", "stages", int(StageCount))
	d.initialized = true
	return nil
}

// destroyPipelines releases the resources of stages [0, upTo).
func (d *Dispatcher) destroyPipelines(upTo Stage) {
	for j := Stage(0); j < upTo; j++ {
		if d.pipelines[j] != nil {
			d.device.DestroyComputePipeline(d.pipelines[j])
			d.pipelines[j] = nil
		}
		if d.pipelineLayouts[j] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[j])
			d.pipelineLayouts[j] = nil
		}
		if d.bgLayouts[j] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[j])
			d.bgLayouts[j] = nil
		}
		if d.shaderModules[j] != nil {
			d.device.DestroyShaderModule(d.shaderModules[j])
			d.shaderModules[j] = nil
		}
	}
}

// Close releases the pipelines. Init must be called again before Run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyPipelines(StageCount)
	d.initialized = false
}

// Initialized reports whether Init succeeded and Close has not been called.
func (d *Dispatcher) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// WorkgroupCount returns the workgroups a stage needs for elements items.
// Per-item stages use one invocation per item, sort stages one workgroup
// per chunk, and the scans a single workgroup.
func WorkgroupCount(stage Stage, elements uint32) uint32 {
	if elements == 0 {
		return 0
	}
	switch stage {
	case StageUpsweep, StageDownsweep:
		return (elements + ItemsPerWorkgroup - 1) / ItemsPerWorkgroup
	case StageSpine, StageResolve:
		return 1
	default:
		return (elements + WorkgroupSize - 1) / WorkgroupSize
	}
}

// bufferSizes returns the byte sizes of the frame buffers.
func bufferSizes(cfg Config, cmdWords, metricWords int) map[string]uint64 {
	capacity := uint64(cfg.SortCapacity) * 4
	tiles := uint64(cfg.Tiles())
	return map[string]uint64{
		"cmds":    uint64(cmdWords) * 4,
		"metrics": uint64(metricWords) * 4,
		"boxes":   uint64(cfg.NumPrims) * 16,
		"bump":    8,
		"counts":  tiles * 4,
		"keys":    capacity,
		"spine":   uint64(cfg.Chunks()) * 256 * 4,
		"ranges":  tiles * 8,
		"staging": 8 + tiles*8 + capacity,
	}
}

func (d *Dispatcher) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	const minBufSize = 4
	if size < minBufSize {
		size = minBufSize
	}
	return d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
}

func (d *Dispatcher) allocate(cfg Config, cmds, metrics []uint32) (*buffers, error) {
	sz := bufferSizes(cfg, len(cmds), len(metrics))
	bufs := &buffers{}

	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageGPU := gputypes.BufferUsageStorage
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc

	type bufSpec struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}
	specs := []bufSpec{
		{&bufs.config, "tilebin_config", cfg.sizeInBytes(), uniformCPU},
		{&bufs.cmds, "tilebin_cmds", sz["cmds"], storageCPU},
		{&bufs.metrics, "tilebin_metrics", sz["metrics"], storageCPU},
		{&bufs.boxes, "tilebin_boxes", sz["boxes"], storageGPU},
		{&bufs.bump, "tilebin_bump", sz["bump"], storageOut | gputypes.BufferUsageCopyDst},
		{&bufs.counts, "tilebin_tile_counts", sz["counts"], storageGPU},
		{&bufs.keysA, "tilebin_keys_a", sz["keys"], storageGPU},
		{&bufs.valsA, "tilebin_vals_a", sz["keys"], storageOut},
		{&bufs.keysB, "tilebin_keys_b", sz["keys"], storageGPU},
		{&bufs.valsB, "tilebin_vals_b", sz["keys"], storageGPU},
		{&bufs.spine, "tilebin_spine", sz["spine"], storageGPU},
		{&bufs.ranges, "tilebin_ranges", sz["ranges"], storageOut},
		{&bufs.staging, "tilebin_staging", sz["staging"], gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
	}
	for p := range bufs.passes {
		specs = append(specs, bufSpec{&bufs.passes[p], fmt.Sprintf("tilebin_pass_%d", p), 16, uniformCPU})
	}

	for _, s := range specs {
		buf, err := d.createBuffer(s.label, s.size, s.usage)
		if err != nil {
			d.destroyBuffers(bufs)
			return nil, fmt.Errorf("gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}

	d.queue.WriteBuffer(bufs.config, 0, cfg.toBytes())
	for p, buf := range bufs.passes {
		d.queue.WriteBuffer(buf, 0, passBytes(p))
	}
	if len(cmds) > 0 {
		d.queue.WriteBuffer(bufs.cmds, 0, safeish.SliceCast[[]byte](cmds))
	}
	if len(metrics) > 0 {
		d.queue.WriteBuffer(bufs.metrics, 0, safeish.SliceCast[[]byte](metrics))
	}

	slogger().Debug("gpu: buffers allocated",
		"tiles", cfg.Tiles(),
		"primitives", cfg.NumPrims,
		"sort_capacity", cfg.SortCapacity,
		"staging_bytes", sz["staging"])
	return bufs, nil
}

func (d *Dispatcher) destroyBuffers(bufs *buffers) {
	for _, b := range bufs.all() {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}
	*bufs = buffers{}
}

// dispatch is one recorded compute pass.
type dispatch struct {
	stage      Stage
	label      string
	workgroups uint32
	entries    []gputypes.BindGroupEntry
}

func bindEntries(bufs ...hal.Buffer) []gputypes.BindGroupEntry {
	out := make([]gputypes.BindGroupEntry, len(bufs))
	for i, buf := range bufs {
		out[i] = gputypes.BindGroupEntry{
			Binding: uint32(i),
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}
	return out
}

// plan returns the passes of one frame in submission order. Sort passes
// ping-pong between the A and B buffers; after an even number of passes
// the result is back in A.
func plan(cfg Config, b *buffers) []dispatch {
	tiles := max(cfg.Tiles(), 1)
	out := []dispatch{
		{StageClear, "clear", WorkgroupCount(StageClear, tiles), bindEntries(b.config, b.bump, b.counts)},
		{StageBounds, "bounds", WorkgroupCount(StageBounds, cfg.NumPrims), bindEntries(b.config, b.cmds, b.metrics, b.boxes)},
		{StageScatter, "scatter", WorkgroupCount(StageScatter, cfg.NumPrims),
			bindEntries(b.config, b.boxes, b.bump, b.counts, b.keysA, b.valsA)},
	}

	srcK, srcV, dstK, dstV := b.keysA, b.valsA, b.keysB, b.valsB
	for p := range Passes {
		out = append(out,
			dispatch{StageUpsweep, fmt.Sprintf("upsweep_%d", p), WorkgroupCount(StageUpsweep, cfg.SortCapacity),
				bindEntries(b.config, b.passes[p], b.bump, srcK, b.spine)},
			dispatch{StageSpine, fmt.Sprintf("spine_%d", p), WorkgroupCount(StageSpine, cfg.SortCapacity),
				bindEntries(b.config, b.spine)},
			dispatch{StageDownsweep, fmt.Sprintf("downsweep_%d", p), WorkgroupCount(StageDownsweep, cfg.SortCapacity),
				bindEntries(b.config, b.passes[p], b.bump, srcK, srcV, b.spine, dstK, dstV)},
		)
		srcK, srcV, dstK, dstV = dstK, dstV, srcK, srcV
	}

	return append(out,
		dispatch{StageResolve, "resolve", WorkgroupCount(StageResolve, cfg.Tiles()), bindEntries(b.config, b.counts, b.ranges)})
}

// frameResources tracks per-frame GPU objects for cleanup.
type frameResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *frameResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// Run bins one frame. cmds holds CmdStride words per primitive and metrics
// MetricsStride words per glyph metrics entry.
func (d *Dispatcher) Run(cfg Config, cmds, metrics []uint32) (*Output, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if cfg.KeyBits() > 32 {
		return nil, fmt.Errorf("%w: %d bits", ErrKeyOverflow, cfg.KeyBits())
	}
	if len(cmds) < int(cfg.NumPrims)*CmdStride {
		return nil, fmt.Errorf("gpu: %d command words for %d primitives", len(cmds), cfg.NumPrims)
	}
	cfg.NumMetrics = uint32(len(metrics) / MetricsStride)

	bufs, err := d.allocate(cfg, cmds, metrics)
	if err != nil {
		return nil, err
	}
	defer d.destroyBuffers(bufs)

	res := &frameResources{device: d.device}
	defer res.cleanup()

	sz := bufferSizes(cfg, len(cmds), len(metrics))
	if err := d.encode(res, plan(cfg, bufs), bufs, sz); err != nil {
		return nil, err
	}
	if err := d.submitAndWait(res); err != nil {
		return nil, err
	}

	words := make([]uint32, sz["staging"]/4)
	if err := d.queue.ReadBuffer(bufs.staging, 0, safeish.SliceCast[[]byte](words)); err != nil {
		return nil, fmt.Errorf("gpu: readback: %w", err)
	}

	tiles := int(cfg.Tiles())
	out := &Output{
		Entries:  words[0],
		Overflow: words[1] != 0 || words[0] > cfg.SortCapacity,
		Ranges:   words[2 : 2+2*tiles],
	}
	if !out.Overflow {
		out.Values = words[2+2*tiles : 2+2*tiles+int(out.Entries)]
	}

	slogger().Debug("gpu: frame binned", "entries", out.Entries, "overflow", out.Overflow)
	return out, nil
}

// encode records every dispatch and the readback copies.
func (d *Dispatcher) encode(res *frameResources, passes []dispatch, bufs *buffers, sz map[string]uint64) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "tilebin"})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("tilebin"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	for _, p := range passes {
		if p.workgroups == 0 {
			continue
		}

		bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "tilebin_" + p.label + "_bg",
			Layout:  d.bgLayouts[p.stage],
			Entries: p.entries,
		})
		if err != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("gpu: create bind group for %s: %w", p.label, err)
		}
		res.bindGroups = append(res.bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "tilebin_" + p.label})
		pass.SetPipeline(d.pipelines[p.stage])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(p.workgroups, 1, 1)
		pass.End()

		slogger().Debug("gpu: dispatched stage", "stage", p.label, "workgroups", p.workgroups)
	}

	encoder.CopyBufferToBuffer(bufs.bump, bufs.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: sz["bump"]},
	})
	if sz["ranges"] > 0 {
		encoder.CopyBufferToBuffer(bufs.ranges, bufs.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: sz["bump"], Size: sz["ranges"]},
		})
	}
	if sz["keys"] > 0 {
		encoder.CopyBufferToBuffer(bufs.valsA, bufs.staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: sz["bump"] + sz["ranges"], Size: sz["keys"]},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

func (d *Dispatcher) submitAndWait(res *frameResources) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	res.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}

	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("gpu: GPU timeout after %v", fenceTimeout)
	}
	return nil
}
