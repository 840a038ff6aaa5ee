package nn

import (
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// LayerNorm normalizes over the last dimension:
//
//	Y = gamma * (X - mean(X)) / sqrt(var(X) + eps) + beta
//
// Mean and variance are computed per position across the feature axis.
type LayerNorm[B tensor.Backend] struct {
	Gamma   *Parameter[B] // learnable scale [dim]
	Beta    *Parameter[B] // learnable shift [dim]
	Epsilon float32
	backend B
}

// NewLayerNorm creates a LayerNorm over the trailing dimension of size dim.
// Gamma starts at ones, beta at zeros.
func NewLayerNorm[B tensor.Backend](dim int, epsilon float32, backend B) *LayerNorm[B] {
	return &LayerNorm[B]{
		Gamma:   NewParameter("gamma", Ones(tensor.Shape{dim}, backend)),
		Beta:    NewParameter("beta", Zeros(tensor.Shape{dim}, backend)),
		Epsilon: epsilon,
		backend: backend,
	}
}

// Forward applies LayerNorm; input and output are [..., dim].
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mean := x.MeanDim(-1, true)
	centered := x.Sub(mean)

	variance := centered.Mul(centered).MeanDim(-1, true)
	rsqrt := variance.AddScalar(l.Epsilon).Rsqrt()

	normalized := centered.Mul(rsqrt)

	// gamma/beta are [dim]; unsqueeze leading axes so broadcasting lines up.
	gamma := l.Gamma.Tensor()
	beta := l.Beta.Tensor()
	for i := 0; i < len(x.Shape())-1; i++ {
		gamma = gamma.Unsqueeze(0)
		beta = beta.Unsqueeze(0)
	}

	return normalized.Mul(gamma).Add(beta)
}

// Parameters returns gamma and beta.
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.Gamma, l.Beta}
}
