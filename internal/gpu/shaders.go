//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"honnef.co/go/safeish"
)

//go:embed shaders/clear.wgsl
var shaderClear string

//go:embed shaders/bounds.wgsl
var shaderBounds string

//go:embed shaders/scatter.wgsl
var shaderScatter string

//go:embed shaders/upsweep.wgsl
var shaderUpsweep string

//go:embed shaders/spine.wgsl
var shaderSpine string

//go:embed shaders/downsweep.wgsl
var shaderDownsweep string

//go:embed shaders/resolve.wgsl
var shaderResolve string

// Stage identifies one compute stage of the binning pipeline.
type Stage int

const (
	// StageClear zeroes the hit allocator and per-tile counts.
	StageClear Stage = iota

	// StageBounds decodes commands into screen-space boxes.
	StageBounds

	// StageScatter writes one sort key per (fine tile, primitive) overlap.
	StageScatter

	// StageUpsweep counts digits per chunk into the spine.
	StageUpsweep

	// StageSpine scans the spine into per-chunk digit offsets.
	StageSpine

	// StageDownsweep scatters entries stably by digit.
	StageDownsweep

	// StageResolve scans tile counts into tile ranges.
	StageResolve

	// StageCount is the number of stages.
	StageCount
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageClear:
		return "clear"
	case StageBounds:
		return "bounds"
	case StageScatter:
		return "scatter"
	case StageUpsweep:
		return "upsweep"
	case StageSpine:
		return "spine"
	case StageDownsweep:
		return "downsweep"
	case StageResolve:
		return "resolve"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

var shaderSources = [StageCount]string{
	StageClear:     shaderClear,
	StageBounds:    shaderBounds,
	StageScatter:   shaderScatter,
	StageUpsweep:   shaderUpsweep,
	StageSpine:     shaderSpine,
	StageDownsweep: shaderDownsweep,
	StageResolve:   shaderResolve,
}

// ShaderSource returns the WGSL source of a stage, or "" for an unknown
// stage.
func ShaderSource(s Stage) string {
	if s < 0 || s >= StageCount {
		return ""
	}
	return shaderSources[s]
}

// CompileSPIRV compiles the stage's WGSL to SPIR-V words. It is used to
// validate shaders without a device.
func CompileSPIRV(s Stage) ([]uint32, error) {
	src := ShaderSource(s)
	if src == "" {
		return nil, fmt.Errorf("gpu: no shader for stage %s", s)
	}
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("gpu: compile %s shader: %w", s, err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("gpu: %s shader: SPIR-V length %d is not word aligned", s, len(spirv))
	}

	// SPIR-V is a little-endian word stream; copy so the result does not
	// depend on the alignment of the compiler's buffer.
	words := make([]uint32, len(spirv)/4)
	copy(safeish.SliceCast[[]byte](words), spirv)
	return words, nil
}
