package cpu

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Cat concatenates tensors along the given dimension. All inputs must share
// dtype and agree on every dimension except dim.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors to concatenate")
	}
	if len(tensors) == 1 {
		return tensors[0].Clone()
	}

	first := tensors[0]
	ndim := len(first.Shape())
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dim %d out of range for shape %v", dim, first.Shape()))
	}

	catSize := 0
	for i, t := range tensors {
		if t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: dtype mismatch: %s vs %s", first.DType(), t.DType()))
		}
		s := t.Shape()
		if len(s) != ndim {
			panic(fmt.Sprintf("cat: rank mismatch: %v vs %v", first.Shape(), s))
		}
		for d := 0; d < ndim; d++ {
			if d != dim && s[d] != first.Shape()[d] {
				panic(fmt.Sprintf("cat: tensor %d has shape %v, incompatible with %v along dim %d",
					i, s, first.Shape(), dim))
			}
		}
		catSize += s[dim]
	}

	outShape := first.Shape().Clone()
	outShape[dim] = catSize
	result, err := tensor.NewRaw(outShape, first.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	// Each input contributes a contiguous chunk of shape[dim:] elements per
	// outer index, so concatenation is a strided byte copy.
	elemSize := first.DType().Size()
	outer := 1
	for d := 0; d < dim; d++ {
		outer *= outShape[d]
	}
	inner := elemSize
	for d := dim + 1; d < ndim; d++ {
		inner *= outShape[d]
	}

	dst := result.Data()
	outRow := catSize * inner
	rowOffset := 0
	for _, t := range tensors {
		chunk := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*outRow+rowOffset:o*outRow+rowOffset+chunk], src[o*chunk:(o+1)*chunk])
		}
		rowOffset += chunk
	}

	return result
}
