package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// GatedDenseConfig configures a GatedDense block.
type GatedDenseConfig struct {
	EmbedDim   int        // Input/output width.
	HiddenDim  int        // Hidden width; 0 defaults to 2*EmbedDim.
	Activation Activation // Nonlinearity on the input projection.
	Gated      bool       // Whether to multiply by a linear gate of the input.
	Bias       bool       // Whether projections carry bias vectors.
}

// DefaultGatedDenseConfig returns a SiLU-activated, gated block with
// HiddenDim = 2*EmbedDim and biased projections.
func DefaultGatedDenseConfig(embedDim int) GatedDenseConfig {
	return GatedDenseConfig{
		EmbedDim:   embedDim,
		HiddenDim:  2 * embedDim,
		Activation: SiLU,
		Gated:      true,
		Bias:       true,
	}
}

// GatedDense is the positionwise feed-forward block:
//
//	out = OutProj(act(InProj(x)) * Gate(x))    (gated)
//	out = OutProj(act(InProj(x)))              (ungated)
//
// The gate is a plain linear projection of the input (GLU family); with SiLU
// activation and gating this is the SwiGLU variant used in modern stacks.
// Applied positionwise: any leading dims are flattened around the Linears.
type GatedDense[B tensor.Backend] struct {
	InProj  *Linear[B] // [embedDim, hiddenDim]
	Gate    *Linear[B] // [embedDim, hiddenDim], nil when ungated
	OutProj *Linear[B] // [hiddenDim, embedDim]

	config GatedDenseConfig
}

// NewGatedDense creates a GatedDense block.
func NewGatedDense[B tensor.Backend](cfg GatedDenseConfig, backend B) *GatedDense[B] {
	if cfg.EmbedDim <= 0 {
		panic(fmt.Sprintf("GatedDense: EmbedDim must be positive, got %d", cfg.EmbedDim))
	}
	if cfg.HiddenDim == 0 {
		cfg.HiddenDim = 2 * cfg.EmbedDim
	}

	g := &GatedDense[B]{
		InProj:  NewLinear(cfg.EmbedDim, cfg.HiddenDim, cfg.Bias, backend),
		OutProj: NewLinear(cfg.HiddenDim, cfg.EmbedDim, cfg.Bias, backend),
		config:  cfg,
	}
	if cfg.Gated {
		g.Gate = NewLinear(cfg.EmbedDim, cfg.HiddenDim, cfg.Bias, backend)
	}
	return g
}

// Forward applies the block to (batch, seq, embedDim) or (batch, embedDim)
// input, preserving the input shape.
func (g *GatedDense[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	rows := 1
	for _, s := range shape[:len(shape)-1] {
		rows *= s
	}
	x2D := x.Reshape(rows, shape[len(shape)-1])

	hidden := applyActivation(g.config.Activation, g.InProj.Forward(x2D))
	if g.Gate != nil {
		hidden = hidden.Mul(g.Gate.Forward(x2D))
	}

	out := g.OutProj.Forward(hidden)
	return out.Reshape(shape...)
}

// Parameters returns the projection parameters.
func (g *GatedDense[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 6)
	params = append(params, g.InProj.Parameters()...)
	if g.Gate != nil {
		params = append(params, g.Gate.Parameters()...)
	}
	params = append(params, g.OutProj.Parameters()...)
	return params
}
