// Package tilebin bins 2D UI primitives into screen tiles.
//
// # Overview
//
// tilebin is the binning core of a GPU-driven 2D UI renderer. It takes an
// unordered list of rounded, bordered rectangles and glyph quads and
// produces, for every 16x16 pixel screen tile, the ordered list of the
// primitives covering that tile. A per-pixel pass then evaluates only the
// primitives relevant to each pixel, back to front in submission order.
//
// # Quick Start
//
//	var store tilebin.Store
//	store.AddRect(tilebin.RectAt(tilebin.Vec2{X: 100, Y: 100}, tilebin.Vec2{X: 50, Y: 50}))
//
//	cfg := tilebin.NewFrameConfig(image.Pt(256, 256), image.Pt(512, 512), store.Len())
//
//	b := tilebin.NewBinner()
//	defer b.Close()
//
//	res, err := b.Bin(cfg, &store, nil)
//	if err != nil {
//	    return err
//	}
//	for prim := range res.Fine.Hits(0) {
//	    // primitives covering tile 0, in submission order
//	}
//
// # Pipeline
//
// A frame runs these stages on a worker pool, each one a barrier for the
// next:
//
//   - prepare: per-primitive bounds, plus union boxes per 32 and 1024
//     primitives (commands are decoded here)
//   - coarse: 64 pixel tiles, one L0 bit per (tile, primitive)
//   - fine: 16 pixel tiles, re-testing coarse survivors only
//   - sort and resolve (compact strategy): a stable parallel radix sort of
//     (tile, primitive) keys, then per-tile [min, max) ranges
//
// The compact strategy is the default. The bitmap strategy keeps the fine
// pass output as per-tile L1/L0 bitmaps instead. Both are read through
// [TileIndex].
//
// # Primitive Encodings
//
// A frame is described either by a [Store] (typed arrays plus instances
// referencing them by kind and index) or by a [CommandList] of
// self-contained 8-word records. Both implement [Source].
//
// # Errors
//
// Kernels degrade silently: undecodable commands, NaN coordinates and
// zero-extent boxes cover no tile. Capacity violations are reported by
// [FrameConfig.Validate] and [Binner.Bin] before any kernel runs.
//
// # GPU
//
// [GPUBinner] runs the same pipeline as WGSL compute shaders through
// gogpu/wgpu. Build with -tags nogpu to leave it out.
//
// # Logging
//
// tilebin is silent by default. See [SetLogger].
package tilebin
