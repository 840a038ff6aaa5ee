package nn

import (
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// RMSNorm normalizes over the last dimension without centering:
//
//	Y = X / sqrt(mean(X^2) + eps) * gamma
//
// Cheaper than LayerNorm (no mean subtraction, no shift).
type RMSNorm[B tensor.Backend] struct {
	Gamma   *Parameter[B] // learnable scale [dim]
	Epsilon float32
	backend B
}

// NewRMSNorm creates an RMSNorm over the trailing dimension of size dim.
// Gamma starts at ones.
func NewRMSNorm[B tensor.Backend](dim int, epsilon float32, backend B) *RMSNorm[B] {
	return &RMSNorm[B]{
		Gamma:   NewParameter("gamma", Ones(tensor.Shape{dim}, backend)),
		Epsilon: epsilon,
		backend: backend,
	}
}

// Forward applies RMSNorm; input and output are [..., dim].
func (r *RMSNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	meanSquare := x.Mul(x).MeanDim(-1, true)
	rsqrt := meanSquare.AddScalar(r.Epsilon).Rsqrt()

	normalized := x.Mul(rsqrt)

	gamma := r.Gamma.Tensor()
	for i := 0; i < len(x.Shape())-1; i++ {
		gamma = gamma.Unsqueeze(0)
	}

	return normalized.Mul(gamma)
}

// Parameters returns gamma.
func (r *RMSNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{r.Gamma}
}
