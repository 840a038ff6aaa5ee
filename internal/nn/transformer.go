package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// NamedSequence is one named sub-sequence of a stack input, with its optional
// padding mask (true = padded).
type NamedSequence[B tensor.Backend] struct {
	Name string
	X    *tensor.Tensor[float32, B] // (batch, seq, embedDim)
	Pad  *tensor.Tensor[bool, B]    // (batch, seq) or nil
}

// StackInput is the input to a Transformer forward pass: either a single
// sequence, or an ordered list of named sub-sequences that are concatenated
// along the sequence axis exactly once at the boundary. Order is the caller's
// declaration order, so concatenation is deterministic.
type StackInput[B tensor.Backend] struct {
	x     *tensor.Tensor[float32, B]
	pad   *tensor.Tensor[bool, B]
	parts []NamedSequence[B]
}

// Single wraps one sequence with an optional padding mask.
func Single[B tensor.Backend](x *tensor.Tensor[float32, B], pad *tensor.Tensor[bool, B]) StackInput[B] {
	return StackInput[B]{x: x, pad: pad}
}

// Named wraps an ordered list of named sub-sequences. Padding masks must be
// all present or all absent across parts.
func Named[B tensor.Backend](parts ...NamedSequence[B]) StackInput[B] {
	if len(parts) == 0 {
		panic("StackInput: at least one named sequence required")
	}
	return StackInput[B]{parts: parts}
}

// resolve concatenates named parts (or passes the single sequence through)
// and returns the combined sequence plus its padding mask.
func (in StackInput[B]) resolve() (*tensor.Tensor[float32, B], *tensor.Tensor[bool, B]) {
	if in.parts == nil {
		if in.x == nil {
			panic("StackInput: empty input")
		}
		return in.x, in.pad
	}

	withPad := 0
	for _, p := range in.parts {
		if p.Pad != nil {
			withPad++
		}
	}
	if withPad != 0 && withPad != len(in.parts) {
		panic(fmt.Sprintf("StackInput: padding masks must be all present or all absent, got %d of %d",
			withPad, len(in.parts)))
	}

	if len(in.parts) == 1 {
		return in.parts[0].X, in.parts[0].Pad
	}

	xs := make([]*tensor.Tensor[float32, B], len(in.parts))
	for i, p := range in.parts {
		xs[i] = p.X
	}
	x := tensor.Cat(xs, 1)

	var pad *tensor.Tensor[bool, B]
	if withPad > 0 {
		pads := make([]*tensor.Tensor[bool, B], len(in.parts))
		for i, p := range in.parts {
			pads[i] = p.Pad
		}
		pad = tensor.Cat(pads, 1)
	}

	return x, pad
}

// TransformerConfig configures the encoder stack.
type TransformerConfig struct {
	NumLayers  int
	EmbedDim   int
	OutDim     int     // 0 = no output projection; output stays EmbedDim wide.
	FeatureDim int     // 0 = no per-layer featurewise injection.
	Norm       NormStyle
	NormEps    float32 // 0 defaults to 1e-5
	Attention  AttentionConfig
	Dense      GatedDenseConfig
}

// DefaultTransformerConfig returns a numLayers-deep stack of default
// pre-norm encoder layers.
func DefaultTransformerConfig(numLayers, embedDim, numHeads int) TransformerConfig {
	return TransformerConfig{
		NumLayers: numLayers,
		EmbedDim:  embedDim,
		Norm:      NormLayer,
		NormEps:   1e-5,
		Attention: DefaultAttentionConfig(embedDim, numHeads),
		Dense:     DefaultGatedDenseConfig(embedDim),
	}
}

// Transformer is an N-layer pre-norm encoder stack over padded sequences,
// with optional per-layer featurewise injection of global features, an
// optional output projection, and a final norm over the output width.
//
// Example:
//
//	cfg := nn.DefaultTransformerConfig(4, 64, 8)
//	stack := nn.NewTransformer(cfg, backend)
//	out := stack.Forward(nn.Single(x, pad), nil)
type Transformer[B tensor.Backend] struct {
	Layers      []*EncoderLayer[B]
	Featurewise []*Featurewise[B] // per layer; nil when FeatureDim == 0
	OutProj     *Linear[B]        // nil when OutDim == 0
	OutNorm     Normalizer[B]

	config  TransformerConfig
	backend B
}

// NewTransformer creates the stack. Panics when NumLayers is not positive or
// layer/attention dimensions are inconsistent.
func NewTransformer[B tensor.Backend](cfg TransformerConfig, backend B) *Transformer[B] {
	if cfg.NumLayers <= 0 {
		panic(fmt.Sprintf("Transformer: NumLayers must be positive, got %d", cfg.NumLayers))
	}
	if cfg.Attention.EmbedDim != cfg.EmbedDim {
		panic(fmt.Sprintf("Transformer: attention EmbedDim (%d) must match stack EmbedDim (%d)",
			cfg.Attention.EmbedDim, cfg.EmbedDim))
	}

	layerCfg := LayerConfig{
		EmbedDim:  cfg.EmbedDim,
		Norm:      cfg.Norm,
		NormEps:   cfg.NormEps,
		Attention: cfg.Attention,
		Dense:     cfg.Dense,
	}

	t := &Transformer[B]{
		Layers:  make([]*EncoderLayer[B], cfg.NumLayers),
		config:  cfg,
		backend: backend,
	}
	for i := range t.Layers {
		t.Layers[i] = NewEncoderLayer(layerCfg, backend)
	}

	if cfg.FeatureDim > 0 {
		t.Featurewise = make([]*Featurewise[B], cfg.NumLayers)
		for i := range t.Featurewise {
			t.Featurewise[i] = NewFeaturewise(cfg.FeatureDim, cfg.EmbedDim, backend)
		}
	}

	outDim := cfg.EmbedDim
	if cfg.OutDim > 0 {
		t.OutProj = NewLinear(cfg.EmbedDim, cfg.OutDim, true, backend)
		outDim = cfg.OutDim
	}
	eps := cfg.NormEps
	if eps == 0 {
		eps = 1e-5
	}
	t.OutNorm = newNormalizer(cfg.Norm, outDim, eps, backend)

	return t
}

// Forward runs the stack. feats is the optional (batch, featureDim) global
// feature vector; it is required when the stack was built with FeatureDim > 0
// and must be nil otherwise.
//
// Returns (batch, seq, EmbedDim), or (batch, seq, OutDim) when an output
// projection is configured. seq is the total (possibly concatenated) length.
func (t *Transformer[B]) Forward(
	in StackInput[B],
	feats *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	x, pad := in.resolve()

	if t.Featurewise != nil && feats == nil {
		panic("Transformer: stack configured with FeatureDim but no features given")
	}
	if t.Featurewise == nil && feats != nil {
		panic("Transformer: features given but stack has no featurewise layers")
	}

	for i, layer := range t.Layers {
		if t.Featurewise != nil {
			x = t.Featurewise[i].Forward(x, feats)
		}
		x = layer.Forward(x, pad, nil)
	}

	if t.OutProj != nil {
		batch, seq := x.Shape()[0], x.Shape()[1]
		x = t.OutProj.Forward(x.Reshape(batch*seq, t.config.EmbedDim))
		x = x.Reshape(batch, seq, t.config.OutDim)
	}

	return t.OutNorm.Forward(x)
}

// Config returns the construction configuration.
func (t *Transformer[B]) Config() TransformerConfig {
	return t.config
}

// Parameters returns every parameter in the stack, layer order first.
func (t *Transformer[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for i, layer := range t.Layers {
		if t.Featurewise != nil {
			params = append(params, t.Featurewise[i].Parameters()...)
		}
		params = append(params, layer.Parameters()...)
	}
	if t.OutProj != nil {
		params = append(params, t.OutProj.Parameters()...)
	}
	params = append(params, t.OutNorm.Parameters()...)
	return params
}

// NumParameters returns the total element count across all parameters.
func (t *Transformer[B]) NumParameters() int {
	total := 0
	for _, p := range t.Parameters() {
		total += p.NumElements()
	}
	return total
}
