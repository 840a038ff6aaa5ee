package cpu

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// SumDim sums along the given dimension. With keepDim the reduced dimension
// stays in the shape with size 1, otherwise it is removed.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("sumdim", x, dim, keepDim, false)
}

// MeanDim averages along the given dimension. Shape semantics match SumDim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("meandim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(name string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	outShape := make(tensor.Shape, 0, len(shape))
	for d, s := range shape {
		if d == dim {
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, s)
	}
	if len(outShape) == 0 {
		outShape = tensor.Shape{1}
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	outer, size, inner := splitDims(shape, dim)

	switch x.DType() {
	case tensor.Float32:
		src, dst := x.AsFloat32(), result.AsFloat32()
		for o := 0; o < outer; o++ {
			base := o * size * inner
			for in := 0; in < inner; in++ {
				var sum float32
				for i := 0; i < size; i++ {
					sum += src[base+i*inner+in]
				}
				if mean {
					sum /= float32(size)
				}
				dst[o*inner+in] = sum
			}
		}
	case tensor.Float64:
		src, dst := x.AsFloat64(), result.AsFloat64()
		for o := 0; o < outer; o++ {
			base := o * size * inner
			for in := 0; in < inner; in++ {
				var sum float64
				for i := 0; i < size; i++ {
					sum += src[base+i*inner+in]
				}
				if mean {
					sum /= float64(size)
				}
				dst[o*inner+in] = sum
			}
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}
