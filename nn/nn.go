// Copyright 2026 The trackformer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the public API for trackformer's transformer modules:
// masked multi-head attention over padded sequences, gated feed-forward
// blocks, pre-norm encoder/decoder layers and the full stack.
package nn

import (
	"github.com/ftag-ml/trackformer/internal/nn"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Parameter is a named weight tensor owned by a layer.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter wraps an initialized tensor as a named parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Linear is a fully connected layer with an optional bias.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, withBias bool, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, withBias, backend)
}

// Masking

// MergeMasks combines optional query padding, key padding and explicit
// attention masks into a single (batch, seqQ, seqK) mask; nil when all three
// are absent. true marks a forbidden pair.
func MergeMasks[B tensor.Backend](
	qMask, kvMask, attnMask *tensor.Tensor[bool, B],
	qShape, kShape tensor.Shape,
) *tensor.Tensor[bool, B] {
	return nn.MergeMasks(qMask, kvMask, attnMask, qShape, kShape)
}

// Attention

// AttentionBackend selects the attention kernel.
type AttentionBackend = nn.AttentionBackend

// Attention kernel constants.
const (
	MemEfficient AttentionBackend = nn.MemEfficient
	Flash        AttentionBackend = nn.Flash
)

// AttentionConfig configures a MultiHeadAttention layer.
type AttentionConfig = nn.AttentionConfig

// DefaultAttentionConfig returns the standard attention configuration.
func DefaultAttentionConfig(embedDim, numHeads int) AttentionConfig {
	return nn.DefaultAttentionConfig(embedDim, numHeads)
}

// MultiHeadAttention is masked multi-head attention with grouped key/value
// heads over padded sequences.
type MultiHeadAttention[B tensor.Backend] = nn.MultiHeadAttention[B]

// NewAttention creates a MultiHeadAttention layer.
func NewAttention[B tensor.Backend](cfg AttentionConfig, backend B) *MultiHeadAttention[B] {
	return nn.NewAttention(cfg, backend)
}

// SelfAttention attends a sequence to itself.
type SelfAttention[B tensor.Backend] = nn.SelfAttention[B]

// NewSelfAttention creates a self-attention layer.
func NewSelfAttention[B tensor.Backend](cfg AttentionConfig, backend B) *SelfAttention[B] {
	return nn.NewSelfAttention(cfg, backend)
}

// CrossAttention attends a query sequence to a separate key/value sequence.
type CrossAttention[B tensor.Backend] = nn.CrossAttention[B]

// NewCrossAttention creates a cross-attention layer.
func NewCrossAttention[B tensor.Backend](cfg AttentionConfig, backend B) *CrossAttention[B] {
	return nn.NewCrossAttention(cfg, backend)
}

// ScaledDotProductAttention is the generic attention kernel. The keep mask
// uses the KEEP convention: true = attend.
func ScaledDotProductAttention[B tensor.Backend](
	query, key, value *tensor.Tensor[float32, B],
	keepMask *tensor.Tensor[bool, B],
	dropout, scale float32,
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	return nn.ScaledDotProductAttention(query, key, value, keepMask, dropout, scale)
}

// Feed-forward

// Activation selects the GatedDense nonlinearity.
type Activation = nn.Activation

// Supported activations.
const (
	ReLU Activation = nn.ReLU
	SiLU Activation = nn.SiLU
	GELU Activation = nn.GELU
)

// GatedDenseConfig configures a GatedDense block.
type GatedDenseConfig = nn.GatedDenseConfig

// DefaultGatedDenseConfig returns the standard gated feed-forward configuration.
func DefaultGatedDenseConfig(embedDim int) GatedDenseConfig {
	return nn.DefaultGatedDenseConfig(embedDim)
}

// GatedDense is the positionwise gated feed-forward block.
type GatedDense[B tensor.Backend] = nn.GatedDense[B]

// NewGatedDense creates a GatedDense block.
func NewGatedDense[B tensor.Backend](cfg GatedDenseConfig, backend B) *GatedDense[B] {
	return nn.NewGatedDense(cfg, backend)
}

// Normalization

// NormStyle selects the normalization layer.
type NormStyle = nn.NormStyle

// Supported normalization styles.
const (
	NormLayer NormStyle = nn.NormLayer
	NormRMS   NormStyle = nn.NormRMS
)

// Normalizer is the interface shared by LayerNorm and RMSNorm.
type Normalizer[B tensor.Backend] = nn.Normalizer[B]

// LayerNorm normalizes over the last dimension with scale and shift.
type LayerNorm[B tensor.Backend] = nn.LayerNorm[B]

// NewLayerNorm creates a LayerNorm layer.
func NewLayerNorm[B tensor.Backend](dim int, epsilon float32, backend B) *LayerNorm[B] {
	return nn.NewLayerNorm(dim, epsilon, backend)
}

// RMSNorm normalizes over the last dimension without centering.
type RMSNorm[B tensor.Backend] = nn.RMSNorm[B]

// NewRMSNorm creates an RMSNorm layer.
func NewRMSNorm[B tensor.Backend](dim int, epsilon float32, backend B) *RMSNorm[B] {
	return nn.NewRMSNorm(dim, epsilon, backend)
}

// Layers and stack

// LayerConfig configures one encoder or decoder layer.
type LayerConfig = nn.LayerConfig

// DefaultLayerConfig returns a default pre-norm layer configuration.
func DefaultLayerConfig(embedDim, numHeads int) LayerConfig {
	return nn.DefaultLayerConfig(embedDim, numHeads)
}

// EncoderLayer is a pre-norm residual self-attention block.
type EncoderLayer[B tensor.Backend] = nn.EncoderLayer[B]

// NewEncoderLayer creates an encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg LayerConfig, backend B) *EncoderLayer[B] {
	return nn.NewEncoderLayer(cfg, backend)
}

// DecoderLayer is a pre-norm residual cross-attention block.
type DecoderLayer[B tensor.Backend] = nn.DecoderLayer[B]

// NewDecoderLayer creates a decoder layer.
func NewDecoderLayer[B tensor.Backend](cfg LayerConfig, backend B) *DecoderLayer[B] {
	return nn.NewDecoderLayer(cfg, backend)
}

// Featurewise injects per-sequence global features via a FiLM-style affine
// transform.
type Featurewise[B tensor.Backend] = nn.Featurewise[B]

// NewFeaturewise creates a Featurewise transform.
func NewFeaturewise[B tensor.Backend](featureDim, embedDim int, backend B) *Featurewise[B] {
	return nn.NewFeaturewise(featureDim, embedDim, backend)
}

// NamedSequence is one named sub-sequence of a stack input.
type NamedSequence[B tensor.Backend] = nn.NamedSequence[B]

// StackInput is the input to a Transformer forward pass.
type StackInput[B tensor.Backend] = nn.StackInput[B]

// Single wraps one sequence with an optional padding mask.
func Single[B tensor.Backend](x *tensor.Tensor[float32, B], pad *tensor.Tensor[bool, B]) StackInput[B] {
	return nn.Single(x, pad)
}

// Named wraps an ordered list of named sub-sequences, concatenated along the
// sequence axis at the stack boundary.
func Named[B tensor.Backend](parts ...NamedSequence[B]) StackInput[B] {
	return nn.Named(parts...)
}

// TransformerConfig configures the encoder stack.
type TransformerConfig = nn.TransformerConfig

// DefaultTransformerConfig returns a default stack configuration.
func DefaultTransformerConfig(numLayers, embedDim, numHeads int) TransformerConfig {
	return nn.DefaultTransformerConfig(numLayers, embedDim, numHeads)
}

// Transformer is an N-layer pre-norm encoder stack over padded sequences.
type Transformer[B tensor.Backend] = nn.Transformer[B]

// NewTransformer creates the stack.
func NewTransformer[B tensor.Backend](cfg TransformerConfig, backend B) *Transformer[B] {
	return nn.NewTransformer(cfg, backend)
}

// Initialization helpers

// Xavier creates a tensor with Xavier/Glorot uniform initialization.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend)
}

// Zeros creates a zero-initialized float32 tensor.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones creates a one-initialized float32 tensor.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}
