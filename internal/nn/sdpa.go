package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// ScaledDotProductAttention computes softmax(QK^T * scale) @ V.
//
// This is the memory-efficient reference kernel: it materializes the full
// (batch, heads, seqQ, seqK) score matrix, which also makes the attention
// weights available for introspection.
//
// Parameters:
//   - query: (batch, heads, seqQ, headDim)
//   - key:   (batch, heads, seqK, headDim)
//   - value: (batch, heads, seqK, headDim)
//   - keepMask: optional (batch, heads, seqQ, seqK) bool mask where true
//     means the pair participates in attention; false positions get -Inf
//     before the softmax. Note the KEEP convention: callers holding a
//     padding-style mask (true = forbidden) must invert it first.
//   - dropout: weight dropout rate in [0, 1); 0 disables dropout entirely
//     and makes the kernel deterministic.
//   - scale: score scaling factor, 0 for the default 1/sqrt(headDim).
//
// Returns the attended values (batch, heads, seqQ, headDim) and the attention
// weights (batch, heads, seqQ, seqK).
//
// A query row whose keep mask is entirely false softmaxes over nothing and
// yields NaN; Attention avoids this by appending a zero-attention key.
func ScaledDotProductAttention[B tensor.Backend](
	query, key, value *tensor.Tensor[float32, B],
	keepMask *tensor.Tensor[bool, B],
	dropout float32,
	scale float32,
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	validateAttentionInputs(query, key, value)

	if scale == 0 {
		scale = float32(1.0 / math.Sqrt(float64(query.Shape()[3])))
	}

	// scores = Q @ K^T * scale: (batch, heads, seqQ, seqK)
	scores := query.BatchMatMul(key.Transpose(0, 1, 3, 2)).MulScalar(scale)

	if keepMask != nil {
		if !keepMask.Shape().Equal(scores.Shape()) {
			panic(fmt.Sprintf("ScaledDotProductAttention: keep mask shape %v does not match scores %v",
				keepMask.Shape(), scores.Shape()))
		}
		negInf := float32(math.Inf(-1))
		keep := keepMask.Data()
		data := scores.Data()
		for i, k := range keep {
			if !k {
				data[i] = negInf
			}
		}
	}

	weights := scores.Softmax(-1)

	if dropout > 0 {
		weights = dropWeights(weights, dropout)
	}

	output := weights.BatchMatMul(value)
	return output, weights
}

// dropWeights applies inverted dropout to the attention weights: each weight
// is zeroed with probability rate, survivors are scaled by 1/(1-rate) so the
// expected row sum stays 1.
func dropWeights[B tensor.Backend](weights *tensor.Tensor[float32, B], rate float32) *tensor.Tensor[float32, B] {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropWeights: rate must be in [0, 1), got %v", rate))
	}

	out := weights.Clone()
	keepScale := 1 / (1 - rate)
	data := out.Data()
	for i := range data {
		//nolint:gosec // stochastic regularization, not security-critical
		if rand.Float32() < rate {
			data[i] = 0
		} else {
			data[i] *= keepScale
		}
	}
	return out
}

func validateAttentionInputs[B tensor.Backend](
	query, key, value *tensor.Tensor[float32, B],
) {
	if len(query.Shape()) != 4 || len(key.Shape()) != 4 || len(value.Shape()) != 4 {
		panic("ScaledDotProductAttention: query, key and value must be 4D (batch, heads, seq, headDim)")
	}
	if query.Shape()[3] != key.Shape()[3] {
		panic("ScaledDotProductAttention: query and key must have the same headDim")
	}
	if key.Shape()[2] != value.Shape()[2] {
		panic("ScaledDotProductAttention: key and value must have the same sequence length")
	}
	if query.Shape()[1] != key.Shape()[1] || key.Shape()[1] != value.Shape()[1] {
		panic("ScaledDotProductAttention: query, key and value must have the same head count")
	}
}
