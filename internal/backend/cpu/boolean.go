package cpu

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Or performs element-wise logical OR on bool tensors with broadcasting.
func (cpu *CPUBackend) Or(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.boolOp("or", a, b, func(x, y bool) bool { return x || y })
}

// And performs element-wise logical AND on bool tensors with broadcasting.
func (cpu *CPUBackend) And(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.boolOp("and", a, b, func(x, y bool) bool { return x && y })
}

// Not performs element-wise logical negation on a bool tensor.
func (cpu *CPUBackend) Not(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Bool {
		panic(fmt.Sprintf("not: expected bool tensor, got %s", x.DType()))
	}

	result, err := tensor.NewRaw(x.Shape(), tensor.Bool, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("not: %v", err))
	}

	src, dst := x.AsBool(), result.AsBool()
	for i, v := range src {
		dst[i] = !v
	}
	return result
}

func (cpu *CPUBackend) boolOp(name string, a, b *tensor.RawTensor, f func(x, y bool) bool) *tensor.RawTensor {
	if a.DType() != tensor.Bool || b.DType() != tensor.Bool {
		panic(fmt.Sprintf("%s: expected bool tensors, got %s and %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, tensor.Bool, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	av, bv, dst := a.AsBool(), b.AsBool(), result.AsBool()
	if !needsBroadcast {
		for i := range dst {
			dst[i] = f(av[i], bv[i])
		}
		return result
	}

	aStride := broadcastStrides(a.Shape(), outShape)
	bStride := broadcastStrides(b.Shape(), outShape)
	forEachIndex(outShape, func(flat int, coords []int) {
		dst[flat] = f(av[offsetOf(coords, aStride)], bv[offsetOf(coords, bStride)])
	})
	return result
}
