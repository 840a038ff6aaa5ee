// Package cpu implements the CPU backend with BLAS-backed matrix kernels.
package cpu

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/parallel"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// CPUBackend implements tensor operations on CPU. Matrix multiplication is
// delegated to gonum's BLAS implementation; batched kernels fan out across
// cores via the parallel package.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// MulScalar multiplies each element by a scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("mulscalar", x, scalar,
		func(v, s float32) float32 { return v * s },
		func(v, s float64) float64 { return v * s })
}

// AddScalar adds a scalar to each element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("addscalar", x, scalar,
		func(v, s float32) float32 { return v + s },
		func(v, s float64) float64 { return v + s })
}

// scalarOp applies a scalar function element-wise.
func (cpu *CPUBackend) scalarOp(
	name string,
	x *tensor.RawTensor,
	scalar any,
	f32 func(v, s float32) float32,
	f64 func(v, s float64) float64,
) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		s, ok := scalar.(float32)
		if !ok {
			panic(fmt.Sprintf("%s: scalar type %T does not match tensor dtype float32", name, scalar))
		}
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i, v := range src {
			dst[i] = f32(v, s)
		}
	case tensor.Float64:
		s, ok := scalar.(float64)
		if !ok {
			panic(fmt.Sprintf("%s: scalar type %T does not match tensor dtype float64", name, scalar))
		}
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i, v := range src {
			dst[i] = f64(v, s)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}

// binaryOp applies a binary function element-wise with broadcasting.
func (cpu *CPUBackend) binaryOp(
	name string,
	a, b *tensor.RawTensor,
	f32 func(x, y float32) float32,
	f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		av, bv, dst := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		if !needsBroadcast {
			// Fast path: identical shapes, flat iteration.
			for i := range dst {
				dst[i] = f32(av[i], bv[i])
			}
			return result
		}
		aStride := broadcastStrides(a.Shape(), outShape)
		bStride := broadcastStrides(b.Shape(), outShape)
		forEachIndex(outShape, func(flat int, coords []int) {
			dst[flat] = f32(av[offsetOf(coords, aStride)], bv[offsetOf(coords, bStride)])
		})
	case tensor.Float64:
		av, bv, dst := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		if !needsBroadcast {
			for i := range dst {
				dst[i] = f64(av[i], bv[i])
			}
			return result
		}
		aStride := broadcastStrides(a.Shape(), outShape)
		bStride := broadcastStrides(b.Shape(), outShape)
		forEachIndex(outShape, func(flat int, coords []int) {
			dst[flat] = f64(av[offsetOf(coords, aStride)], bv[offsetOf(coords, bStride)])
		})
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}
