package runtime

import (
	"maps"
	"strings"
	"sync"

	"github.com/LynnColeArt/guda"
	"github.com/gomlx/tegen/ir"
	"github.com/pkg/errors"
)

// DeviceSourceModule holds the source of device kernels, in the language of the device (CUDA C
// for "cuda").
//
// Its functions launch the kernels on the guda CPU device: each kernel takes its parameters
// followed by the extents of its launch parameters (thread axes), and every thread of the
// launch grid interprets the kernel body.
type DeviceSourceModule struct {
	moduleBase
	mod *ir.IRModule
}

var _ Module = (*DeviceSourceModule)(nil)

// NewDeviceSourceModule creates the module for the generated code of the kernels in mod.
// typeKey is the device kind (e.g. "cuda") and formats the accepted source formats.
func NewDeviceSourceModule(typeKey, code string, formats, funcNames []string, mod *ir.IRModule) *DeviceSourceModule {
	name := ""
	if len(funcNames) > 0 {
		name = funcNames[0]
	}
	return &DeviceSourceModule{
		moduleBase: moduleBase{
			typeKey:   typeKey,
			name:      name,
			source:    code,
			formats:   formats,
			funcNames: funcNames,
		},
		mod: mod,
	}
}

// launchDims converts the launch parameter extents to the guda grid and block dimensions.
func launchDims(tags []string, extents []any) (grid, block guda.Dim3, err error) {
	grid = guda.Dim3{X: 1, Y: 1, Z: 1}
	block = guda.Dim3{X: 1, Y: 1, Z: 1}
	for i, tag := range tags {
		extent, ok := extents[i].(int64)
		if !ok {
			return grid, block, errors.Errorf("extent of %s must be an integer, got %T", tag, extents[i])
		}
		if extent <= 0 {
			return grid, block, errors.Errorf("extent of %s must be positive, got %d", tag, extent)
		}
		var dims *guda.Dim3
		scope, axis, _ := strings.Cut(tag, ".")
		switch scope {
		case "blockIdx":
			dims = &grid
		case "threadIdx":
			dims = &block
		default:
			return grid, block, errors.Errorf("unknown launch parameter %q", tag)
		}
		switch axis {
		case "x":
			dims.X = int(extent)
		case "y":
			dims.Y = int(extent)
		case "z":
			dims.Z = int(extent)
		default:
			return grid, block, errors.Errorf("unknown launch parameter %q", tag)
		}
	}
	return grid, block, nil
}

// threadIndices maps the thread tags to the indices of the thread tid.
func threadIndices(tid guda.ThreadID) map[string]int64 {
	return map[string]int64{
		"blockIdx.x":  int64(tid.BlockIdx.X),
		"blockIdx.y":  int64(tid.BlockIdx.Y),
		"blockIdx.z":  int64(tid.BlockIdx.Z),
		"threadIdx.x": int64(tid.ThreadIdx.X),
		"threadIdx.y": int64(tid.ThreadIdx.Y),
		"threadIdx.z": int64(tid.ThreadIdx.Z),
	}
}

// Function implements Module.
func (m *DeviceSourceModule) Function(name string) (PackedFunc, error) {
	f, found := m.mod.Functions[name]
	if !found {
		return nil, errors.Errorf("%s: kernel %q not found", m, name)
	}
	if f.CallingConv() != ir.CallingConvDeviceKernelLaunch {
		return nil, errors.Errorf("%s: function %q is not a device kernel", m, name)
	}
	tags := f.LaunchParams()
	return func(args ...any) error {
		if len(args) != len(f.Params)+len(tags) {
			return errors.Errorf("%s: kernel %q takes %d arguments and %d launch parameters, got %d values",
				m, name, len(f.Params), len(tags), len(args))
		}
		params := make(map[*ir.Var]any, len(f.Params))
		for i, p := range f.Params {
			value := normalizeScalar(args[i])
			if !p.DType.IsHandle() {
				var err error
				value, err = convert(p.DType, value)
				if err != nil {
					return errors.WithMessagef(err, "%s: kernel %q parameter %s", m, name, p.Name)
				}
			}
			params[p] = value
		}
		extents := make([]any, len(tags))
		for i, extent := range args[len(f.Params):] {
			extents[i] = normalizeScalar(extent)
		}
		grid, block, err := launchDims(tags, extents)
		if err != nil {
			return errors.WithMessagef(err, "%s: launching %q", m, name)
		}

		var (
			mu       sync.Mutex
			firstErr error
		)
		kernel := func(tid guda.ThreadID, _ ...any) {
			it := &interpreter{env: maps.Clone(params), threads: threadIndices(tid)}
			if err := it.exec(f.Body); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.WithMessagef(err, "block %v, thread %v", tid.BlockIdx, tid.ThreadIdx)
				}
				mu.Unlock()
			}
		}
		if err := guda.LaunchFunc(kernel, grid, block); err != nil {
			return errors.Wrapf(err, "%s: launching %q", m, name)
		}
		if err := guda.Synchronize(); err != nil {
			return errors.Wrapf(err, "%s: synchronizing after %q", m, name)
		}
		return errors.WithMessagef(firstErr, "%s: kernel %q", m, name)
	}, nil
}
