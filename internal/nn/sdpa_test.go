package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftag-ml/trackformer/internal/backend/cpu"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

func TestSDPAOutputShape(t *testing.T) {
	backend := cpu.New()
	q := tensor.Randn[float32](tensor.Shape{2, 4, 5, 8}, backend)
	k := tensor.Randn[float32](tensor.Shape{2, 4, 7, 8}, backend)
	v := tensor.Randn[float32](tensor.Shape{2, 4, 7, 8}, backend)

	out, weights := ScaledDotProductAttention(q, k, v, nil, 0, 0)
	assert.Equal(t, tensor.Shape{2, 4, 5, 8}, out.Shape())
	assert.Equal(t, tensor.Shape{2, 4, 5, 7}, weights.Shape())
}

func TestSDPAWeightsSumToOne(t *testing.T) {
	backend := cpu.New()
	q := tensor.Randn[float32](tensor.Shape{1, 2, 3, 4}, backend)
	k := tensor.Randn[float32](tensor.Shape{1, 2, 5, 4}, backend)
	v := tensor.Randn[float32](tensor.Shape{1, 2, 5, 4}, backend)

	_, weights := ScaledDotProductAttention(q, k, v, nil, 0, 0)

	data := weights.Data()
	seqK := 5
	for row := 0; row < len(data)/seqK; row++ {
		var sum float32
		for j := 0; j < seqK; j++ {
			sum += data[row*seqK+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", row)
	}
}

func TestSDPAKeepMaskZeroesWeights(t *testing.T) {
	backend := cpu.New()
	q := tensor.Randn[float32](tensor.Shape{1, 1, 2, 4}, backend)
	k := tensor.Randn[float32](tensor.Shape{1, 1, 3, 4}, backend)
	v := tensor.Randn[float32](tensor.Shape{1, 1, 3, 4}, backend)

	// Forbid key 2 for both queries.
	keep, err := tensor.FromSlice([]bool{
		true, true, false,
		true, true, false,
	}, tensor.Shape{1, 1, 2, 3}, backend)
	require.NoError(t, err)

	_, weights := ScaledDotProductAttention(q, k, v, keep, 0, 0)

	data := weights.Data()
	assert.Zero(t, data[2])
	assert.Zero(t, data[5])
	assert.InDelta(t, 1.0, data[0]+data[1], 1e-5)
	assert.InDelta(t, 1.0, data[3]+data[4], 1e-5)
}

func TestSDPAMatchesNaiveLoop(t *testing.T) {
	backend := cpu.New()
	batch, heads, seqQ, seqK, headDim := 2, 2, 3, 4, 5
	q := tensor.Randn[float32](tensor.Shape{batch, heads, seqQ, headDim}, backend)
	k := tensor.Randn[float32](tensor.Shape{batch, heads, seqK, headDim}, backend)
	v := tensor.Randn[float32](tensor.Shape{batch, heads, seqK, headDim}, backend)

	out, _ := ScaledDotProductAttention(q, k, v, nil, 0, 0)

	scale := float32(1.0 / math.Sqrt(float64(headDim)))
	qd, kd, vd, od := q.Data(), k.Data(), v.Data(), out.Data()

	for bh := 0; bh < batch*heads; bh++ {
		qBase := bh * seqQ * headDim
		kvBase := bh * seqK * headDim
		for i := 0; i < seqQ; i++ {
			// Scores against every key.
			scores := make([]float64, seqK)
			for j := 0; j < seqK; j++ {
				var s float32
				for d := 0; d < headDim; d++ {
					s += qd[qBase+i*headDim+d] * kd[kvBase+j*headDim+d]
				}
				scores[j] = float64(s * scale)
			}

			// Softmax.
			maxS := scores[0]
			for _, s := range scores[1:] {
				maxS = math.Max(maxS, s)
			}
			var sum float64
			for j := range scores {
				scores[j] = math.Exp(scores[j] - maxS)
				sum += scores[j]
			}

			for d := 0; d < headDim; d++ {
				var want float64
				for j := 0; j < seqK; j++ {
					want += scores[j] / sum * float64(vd[kvBase+j*headDim+d])
				}
				got := od[qBase+i*headDim+d]
				assert.InDelta(t, want, float64(got), 1e-5)
			}
		}
	}
}

func TestSDPADropoutZeroIsDeterministic(t *testing.T) {
	backend := cpu.New()
	q := tensor.Randn[float32](tensor.Shape{1, 2, 3, 4}, backend)
	k := tensor.Randn[float32](tensor.Shape{1, 2, 3, 4}, backend)
	v := tensor.Randn[float32](tensor.Shape{1, 2, 3, 4}, backend)

	out1, _ := ScaledDotProductAttention(q, k, v, nil, 0, 0)
	out2, _ := ScaledDotProductAttention(q, k, v, nil, 0, 0)
	assert.Equal(t, out1.Data(), out2.Data())
}

func TestSDPADropoutZeroesSomeWeights(t *testing.T) {
	backend := cpu.New()
	q := tensor.Randn[float32](tensor.Shape{1, 4, 16, 8}, backend)
	k := tensor.Randn[float32](tensor.Shape{1, 4, 16, 8}, backend)
	v := tensor.Randn[float32](tensor.Shape{1, 4, 16, 8}, backend)

	_, weights := ScaledDotProductAttention(q, k, v, nil, 0.5, 0)

	zeros := 0
	for _, w := range weights.Data() {
		if w == 0 {
			zeros++
		}
	}
	// At 50% drop rate over 1024 weights, zero dropped entries is implausible.
	assert.Greater(t, zeros, 0)
}
