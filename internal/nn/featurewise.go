package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Featurewise injects per-sequence global features into a token sequence via
// a FiLM-style affine transform:
//
//	out = x * (1 + Scale(feats)) + Shift(feats)
//
// feats is one vector per batch element (e.g. whole-jet kinematics); the
// projected scale and shift broadcast across the sequence axis. Initializing
// the projections near zero keeps the transform near identity at the start.
type Featurewise[B tensor.Backend] struct {
	Scale *Linear[B] // [featureDim, embedDim]
	Shift *Linear[B] // [featureDim, embedDim]

	featureDim int
	embedDim   int
}

// NewFeaturewise creates a Featurewise transform from featureDim global
// features to an embedDim-wide sequence.
func NewFeaturewise[B tensor.Backend](featureDim, embedDim int, backend B) *Featurewise[B] {
	if featureDim <= 0 || embedDim <= 0 {
		panic(fmt.Sprintf("Featurewise: dimensions must be positive, got featureDim=%d embedDim=%d",
			featureDim, embedDim))
	}
	return &Featurewise[B]{
		Scale:      NewLinear(featureDim, embedDim, true, backend),
		Shift:      NewLinear(featureDim, embedDim, true, backend),
		featureDim: featureDim,
		embedDim:   embedDim,
	}
}

// Forward applies the transform. x is (batch, seq, embedDim), feats is
// (batch, featureDim); the output keeps x's shape.
func (f *Featurewise[B]) Forward(
	x *tensor.Tensor[float32, B],
	feats *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	if feats.Shape()[1] != f.featureDim {
		panic(fmt.Sprintf("Featurewise: expected %d features, got %d", f.featureDim, feats.Shape()[1]))
	}

	// (batch, embedDim) -> (batch, 1, embedDim) for sequence broadcast.
	scale := f.Scale.Forward(feats).AddScalar(1).Unsqueeze(1)
	shift := f.Shift.Forward(feats).Unsqueeze(1)

	return x.Mul(scale).Add(shift)
}

// Parameters returns the scale and shift projection parameters.
func (f *Featurewise[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 4)
	params = append(params, f.Scale.Parameters()...)
	params = append(params, f.Shift.Parameters()...)
	return params
}
