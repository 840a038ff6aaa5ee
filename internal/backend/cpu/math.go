package cpu

import (
	"fmt"
	"math"

	"github.com/ftag-ml/trackformer/internal/parallel"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Rsqrt computes the element-wise reciprocal square root.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("rsqrt", x,
		func(v float32) float32 { return 1 / float32(math.Sqrt(float64(v))) },
		func(v float64) float64 { return 1 / math.Sqrt(v) })
}

// Sigmoid computes the element-wise logistic function.
// Not part of the Backend interface; the nn package discovers it through a
// capability assertion.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("sigmoid", x,
		func(v float32) float32 { return 1 / (1 + float32(math.Exp(-float64(v)))) },
		func(v float64) float64 { return 1 / (1 + math.Exp(-v)) })
}

// Tanh computes the element-wise hyperbolic tangent.
// Capability method, same discovery mechanism as Sigmoid.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("tanh", x,
		func(v float32) float32 { return float32(math.Tanh(float64(v))) },
		func(v float64) float64 { return math.Tanh(v) })
}

// ReLU computes element-wise max(0, x).
// Capability method, same discovery mechanism as Sigmoid.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unaryOp("relu", x,
		func(v float32) float32 { return max(v, 0) },
		func(v float64) float64 { return max(v, 0) })
}

// Softmax applies the softmax function along the given dimension. Each slice
// is shifted by its max for numerical stability. A slice whose entries are
// all -Inf produces NaN; callers that mask entire rows are expected to guard
// against that upstream.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("softmax: %v", err))
	}

	outer, size, inner := splitDims(shape, dim)

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		parallel.For(outer, func(o int) {
			base := o * size * inner
			for in := 0; in < inner; in++ {
				softmaxSlice32(src, dst, base+in, size, inner)
			}
		}, cpu.par)
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		parallel.For(outer, func(o int) {
			base := o * size * inner
			for in := 0; in < inner; in++ {
				softmaxSlice64(src, dst, base+in, size, inner)
			}
		}, cpu.par)
	default:
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}

	return result
}

func softmaxSlice32(src, dst []float32, base, size, stride int) {
	maxVal := float32(math.Inf(-1))
	for i := 0; i < size; i++ {
		if v := src[base+i*stride]; v > maxVal {
			maxVal = v
		}
	}

	var sum float32
	for i := 0; i < size; i++ {
		e := float32(math.Exp(float64(src[base+i*stride] - maxVal)))
		dst[base+i*stride] = e
		sum += e
	}

	inv := 1 / sum
	for i := 0; i < size; i++ {
		dst[base+i*stride] *= inv
	}
}

func softmaxSlice64(src, dst []float64, base, size, stride int) {
	maxVal := math.Inf(-1)
	for i := 0; i < size; i++ {
		if v := src[base+i*stride]; v > maxVal {
			maxVal = v
		}
	}

	var sum float64
	for i := 0; i < size; i++ {
		e := math.Exp(src[base+i*stride] - maxVal)
		dst[base+i*stride] = e
		sum += e
	}

	inv := 1 / sum
	for i := 0; i < size; i++ {
		dst[base+i*stride] *= inv
	}
}

// splitDims factors a shape around dim into (outer, size, inner) extents for
// strided slice iteration.
func splitDims(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	size = shape[dim]
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	return outer, size, inner
}

// unaryOp applies a unary function element-wise.
func (cpu *CPUBackend) unaryOp(
	name string,
	x *tensor.RawTensor,
	f32 func(v float32) float32,
	f64 func(v float64) float64,
) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i, v := range src {
			dst[i] = f32(v)
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for i, v := range src {
			dst[i] = f64(v)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}
