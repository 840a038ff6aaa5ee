package nn

import (
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// LayerConfig configures one encoder or decoder layer.
type LayerConfig struct {
	EmbedDim  int
	Norm      NormStyle
	NormEps   float32 // 0 defaults to 1e-5
	Attention AttentionConfig
	Dense     GatedDenseConfig
}

// DefaultLayerConfig returns a pre-norm layer with LayerNorm, default
// attention and a default gated feed-forward block.
func DefaultLayerConfig(embedDim, numHeads int) LayerConfig {
	return LayerConfig{
		EmbedDim:  embedDim,
		Norm:      NormLayer,
		NormEps:   1e-5,
		Attention: DefaultAttentionConfig(embedDim, numHeads),
		Dense:     DefaultGatedDenseConfig(embedDim),
	}
}

func (c LayerConfig) normEps() float32 {
	if c.NormEps == 0 {
		return 1e-5
	}
	return c.NormEps
}

// EncoderLayer is a pre-norm residual transformer block:
//
//	x = x + SelfAttn(Norm(x))   with kv-side padding mask
//	x = x + Dense(Norm(x))
//
// Each norm owns its own parameters.
type EncoderLayer[B tensor.Backend] struct {
	AttnNorm  Normalizer[B]
	Attn      *SelfAttention[B]
	DenseNorm Normalizer[B]
	Dense     *GatedDense[B]
}

// NewEncoderLayer creates an encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg LayerConfig, backend B) *EncoderLayer[B] {
	return &EncoderLayer[B]{
		AttnNorm:  newNormalizer(cfg.Norm, cfg.EmbedDim, cfg.normEps(), backend),
		Attn:      NewSelfAttention(cfg.Attention, backend),
		DenseNorm: newNormalizer(cfg.Norm, cfg.EmbedDim, cfg.normEps(), backend),
		Dense:     NewGatedDense(cfg.Dense, backend),
	}
}

// Forward applies the block. x is (batch, seq, embedDim); pad is the optional
// (batch, seq) padding mask, true = padded.
func (e *EncoderLayer[B]) Forward(
	x *tensor.Tensor[float32, B],
	pad *tensor.Tensor[bool, B],
	attnMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	x = x.Add(e.Attn.Forward(e.AttnNorm.Forward(x), pad, attnMask))
	x = x.Add(e.Dense.Forward(e.DenseNorm.Forward(x)))
	return x
}

// Parameters returns all layer parameters.
func (e *EncoderLayer[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 16)
	params = append(params, e.AttnNorm.Parameters()...)
	params = append(params, e.Attn.Parameters()...)
	params = append(params, e.DenseNorm.Parameters()...)
	params = append(params, e.Dense.Parameters()...)
	return params
}

// DecoderLayer is a pre-norm residual block whose attention reads from a
// separate key/value sequence:
//
//	x = x + CrossAttn(QNorm(x), KVNorm(kv))   with kv-side padding mask
//	x = x + Dense(Norm(x))
//
// The query and key/value streams are normalized independently.
type DecoderLayer[B tensor.Backend] struct {
	QNorm     Normalizer[B]
	KVNorm    Normalizer[B]
	Attn      *CrossAttention[B]
	DenseNorm Normalizer[B]
	Dense     *GatedDense[B]
}

// NewDecoderLayer creates a decoder layer.
func NewDecoderLayer[B tensor.Backend](cfg LayerConfig, backend B) *DecoderLayer[B] {
	return &DecoderLayer[B]{
		QNorm:     newNormalizer(cfg.Norm, cfg.EmbedDim, cfg.normEps(), backend),
		KVNorm:    newNormalizer(cfg.Norm, cfg.EmbedDim, cfg.normEps(), backend),
		Attn:      NewCrossAttention(cfg.Attention, backend),
		DenseNorm: newNormalizer(cfg.Norm, cfg.EmbedDim, cfg.normEps(), backend),
		Dense:     NewGatedDense(cfg.Dense, backend),
	}
}

// Forward applies the block. x is the query sequence (batch, seqQ, embedDim),
// kv the key/value sequence (batch, seqK, embedDim) with its padding mask.
func (d *DecoderLayer[B]) Forward(
	x, kv *tensor.Tensor[float32, B],
	kvMask *tensor.Tensor[bool, B],
	attnMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	x = x.Add(d.Attn.Forward(d.QNorm.Forward(x), d.KVNorm.Forward(kv), kvMask, attnMask))
	x = x.Add(d.Dense.Forward(d.DenseNorm.Forward(x)))
	return x
}

// Parameters returns all layer parameters.
func (d *DecoderLayer[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 20)
	params = append(params, d.QNorm.Parameters()...)
	params = append(params, d.KVNorm.Parameters()...)
	params = append(params, d.Attn.Parameters()...)
	params = append(params, d.DenseNorm.Parameters()...)
	params = append(params, d.Dense.Parameters()...)
	return params
}
