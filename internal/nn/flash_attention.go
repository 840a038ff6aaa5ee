package nn

import (
	"fmt"
	"math"

	"github.com/ftag-ml/trackformer/internal/parallel"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// flashAttention computes attention without materializing the score matrix,
// using a streaming (online) softmax per query position. Memory per query is
// O(headDim) instead of O(seqK).
//
// The kernel supports a symmetric attention window: query position i attends
// to key positions in [i-left, i+right]. A bound of -1 means unbounded on
// that side, so (-1, -1) is global attention. The window is position-aligned,
// which assumes self-attention-style sequences; Attention enforces that a
// window is only configured where that holds.
//
// No mask parameter: the flash path rejects masks upstream.
//
// Layout: q is (batch, heads, seqQ, headDim), k/v are
// (batch, heads, seqK, headDim), all contiguous. Batch-head slices fan out
// across cores.
func flashAttention[B tensor.Backend](
	q, k, v *tensor.Tensor[float32, B],
	left, right int,
	scale float32,
) *tensor.Tensor[float32, B] {
	batch := q.Shape()[0]
	heads := q.Shape()[1]
	seqQ := q.Shape()[2]
	headDim := q.Shape()[3]
	seqK := k.Shape()[2]

	if scale == 0 {
		scale = float32(1.0 / math.Sqrt(float64(headDim)))
	}

	out := tensor.Zeros[float32](tensor.Shape{batch, heads, seqQ, headDim}, q.Backend())

	qData, kData, vData, oData := q.Data(), k.Data(), v.Data(), out.Data()
	qSlice := seqQ * headDim
	kvSlice := seqK * headDim

	parallel.For(batch*heads, func(bh int) {
		qBase := bh * qSlice
		kvBase := bh * kvSlice

		acc := make([]float32, headDim)
		for i := 0; i < seqQ; i++ {
			qVec := qData[qBase+i*headDim : qBase+(i+1)*headDim]

			jStart, jEnd := 0, seqK
			if left >= 0 && i-left > 0 {
				jStart = i - left
			}
			if right >= 0 && i+right+1 < seqK {
				jEnd = i + right + 1
			}

			// Online softmax accumulation over the key window.
			m := float32(math.Inf(-1))
			var l float32
			for d := range acc {
				acc[d] = 0
			}

			for j := jStart; j < jEnd; j++ {
				kVec := kData[kvBase+j*headDim : kvBase+(j+1)*headDim]

				var s float32
				for d := 0; d < headDim; d++ {
					s += qVec[d] * kVec[d]
				}
				s *= scale

				newM := max(m, s)
				correction := float32(math.Exp(float64(m - newM)))
				p := float32(math.Exp(float64(s - newM)))

				vVec := vData[kvBase+j*headDim : kvBase+(j+1)*headDim]
				for d := 0; d < headDim; d++ {
					acc[d] = acc[d]*correction + p*vVec[d]
				}
				l = l*correction + p
				m = newM
			}

			oVec := oData[qBase+i*headDim : qBase+(i+1)*headDim]
			inv := 1 / l
			for d := 0; d < headDim; d++ {
				oVec[d] = acc[d] * inv
			}
		}
	}, parallel.DefaultConfig())

	return out
}

// windowBounds converts an even WindowSize into symmetric (left, right)
// per-side reaches. Zero means global attention, encoded as (-1, -1).
func windowBounds(windowSize int) (left, right int) {
	if windowSize == 0 {
		return -1, -1
	}
	if windowSize%2 != 0 {
		panic(fmt.Sprintf("attention window size must be even, got %d", windowSize))
	}
	return windowSize / 2, windowSize / 2
}
