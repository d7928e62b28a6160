//go:build !nogpu

// Package gpu runs the compact binning strategy as WebGPU compute passes.
//
// It drives gogpu/wgpu through its HAL layer: WGSL shaders are embedded,
// compiled into one compute pipeline per stage, and dispatched in a single
// command buffer per frame:
//
//	clear -> bounds -> scatter -> 4 x (upsweep -> spine -> downsweep) -> resolve
//
// bounds decodes command records into boxes, scatter bump-allocates one
// (tile, primitive) key per overlapped fine tile, the three sort stages
// order keys by an 8-bit digit per pass, and resolve turns per-tile counts
// into ranges of the sorted array. Keys are 32 bits wide, so the tile and
// primitive indices must fit together.
//
// The sort is reduce-then-scan rather than decoupled look-back: WGSL does
// not guarantee forward progress across workgroups, so a workgroup must
// never spin on another. Dispatch boundaries order the three stages.
//
// Dispatch is sized by capacity rather than by the live entry count, which
// is only known on the device. Sort shaders read the count from the bump
// buffer and skip work past it.
//
// Thread safety: Dispatcher is safe for concurrent use; Run calls are
// serialized against Init and Close.
package gpu
