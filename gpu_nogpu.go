//go:build nogpu

package tilebin

import (
	"log/slog"

	"github.com/gogpu/gpucontext"
)

// GPUBinner is unavailable in nogpu builds.
type GPUBinner struct{}

// NewGPUBinner always fails with ErrGPUUnavailable in nogpu builds.
func NewGPUBinner(provider gpucontext.DeviceProvider) (*GPUBinner, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	return nil, ErrGPUUnavailable
}

// Bin always fails with ErrGPUUnavailable in nogpu builds.
func (*GPUBinner) Bin(FrameConfig, CommandList, []GlyphMetrics) (*CompactIndex, error) {
	return nil, ErrGPUUnavailable
}

// Close is a no-op in nogpu builds.
func (*GPUBinner) Close() {}

// ValidateShaders always fails with ErrGPUUnavailable in nogpu builds.
func ValidateShaders() error {
	return ErrGPUUnavailable
}

func propagateLogger(*slog.Logger) {}
