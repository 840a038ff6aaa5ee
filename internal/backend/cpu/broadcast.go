package cpu

import (
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// broadcastStrides computes source strides aligned to an output shape:
// dimensions of size 1 (or missing leading dimensions) get stride 0 so the
// same source element is reused across the broadcast axis.
func broadcastStrides(src, out tensor.Shape) []int {
	srcStrides := src.ComputeStrides()
	result := make([]int, len(out))

	offset := len(out) - len(src)
	for i := range out {
		srcIdx := i - offset
		if srcIdx < 0 || src[srcIdx] == 1 {
			result[i] = 0
		} else {
			result[i] = srcStrides[srcIdx]
		}
	}
	return result
}

// forEachIndex iterates over every multi-dimensional index of shape in
// row-major order, calling f with the flat output index and coordinates.
// The coords slice is reused between calls.
func forEachIndex(shape tensor.Shape, f func(flat int, coords []int)) {
	n := shape.NumElements()
	coords := make([]int, len(shape))

	for flat := 0; flat < n; flat++ {
		f(flat, coords)

		// Increment coordinates (row-major, last dim fastest).
		for d := len(shape) - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < shape[d] {
				break
			}
			coords[d] = 0
		}
	}
}

// offsetOf computes the flat source offset for coordinates under the given
// (possibly zeroed) strides.
func offsetOf(coords, strides []int) int {
	offset := 0
	for i, c := range coords {
		offset += c * strides[i]
	}
	return offset
}
