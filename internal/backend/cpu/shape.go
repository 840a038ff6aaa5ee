package cpu

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Reshape returns a view of the same buffer under a new shape.
// No data is copied; the element count must be unchanged.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return t.WithShape(newShape)
}

// Transpose permutes the tensor's axes and materializes the result into a
// fresh contiguous buffer. With no axes given, the last two dimensions are
// swapped (matrix transpose convention).
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		if ndim < 2 {
			panic(fmt.Sprintf("transpose: tensor must have at least 2 dimensions, got %v", shape))
		}
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = i
		}
		axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	}

	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}
	seen := make([]bool, ndim)
	for _, a := range axes {
		if a < 0 || a >= ndim || seen[a] {
			panic(fmt.Sprintf("transpose: invalid axis permutation %v for shape %v", axes, shape))
		}
		seen[a] = true
	}

	outShape := make(tensor.Shape, ndim)
	for i, a := range axes {
		outShape[i] = shape[a]
	}

	result, err := tensor.NewRaw(outShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}

	// Gather: walk the output in row-major order and pull each element from
	// the permuted source offset.
	srcStrides := t.Strides()
	gather := make([]int, ndim)
	for i, a := range axes {
		gather[i] = srcStrides[a]
	}

	elemSize := t.DType().Size()
	src, dst := t.Data(), result.Data()
	forEachIndex(outShape, func(flat int, coords []int) {
		srcOff := offsetOf(coords, gather)
		copy(dst[flat*elemSize:(flat+1)*elemSize], src[srcOff*elemSize:(srcOff+1)*elemSize])
	})

	return result
}

// Unsqueeze inserts a dimension of size 1 at the given position.
// This is a view; no data is copied.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape) + 1
	}
	if dim < 0 || dim > len(shape) {
		panic(fmt.Sprintf("unsqueeze: dim %d out of range for shape %v", dim, shape))
	}

	newShape := make(tensor.Shape, 0, len(shape)+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return x.WithShape(newShape)
}

// Expand broadcasts size-1 dimensions up to the target shape and materializes
// the result. Non-singleton dimensions must match exactly.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	src := x.Shape()
	if len(shape) < len(src) {
		panic(fmt.Sprintf("expand: target shape %v has lower rank than %v", shape, src))
	}
	offset := len(shape) - len(src)
	for i, s := range src {
		if s != 1 && s != shape[offset+i] {
			panic(fmt.Sprintf("expand: cannot expand %v to %v (dim %d)", src, shape, i))
		}
	}

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("expand: %v", err))
	}

	strides := broadcastStrides(src, shape)
	elemSize := x.DType().Size()
	srcData, dst := x.Data(), result.Data()
	forEachIndex(shape, func(flat int, coords []int) {
		srcOff := offsetOf(coords, strides)
		copy(dst[flat*elemSize:(flat+1)*elemSize], srcData[srcOff*elemSize:(srcOff+1)*elemSize])
	})

	return result
}
