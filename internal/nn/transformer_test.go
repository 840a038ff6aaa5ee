package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftag-ml/trackformer/internal/backend/cpu"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

func TestTransformerRoundTripShape(t *testing.T) {
	backend := cpu.New()
	stack := NewTransformer(DefaultTransformerConfig(4, 64, 8), backend)

	x := tensor.Randn[float32](tensor.Shape{2, 10, 64}, backend)
	pad := tensor.Zeros[bool](tensor.Shape{2, 10}, backend)

	out := stack.Forward(Single(x, pad), nil)
	assert.Equal(t, tensor.Shape{2, 10, 64}, out.Shape())
}

func TestTransformerOutputProjection(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultTransformerConfig(2, 64, 8)
	cfg.OutDim = 32
	stack := NewTransformer(cfg, backend)

	x := tensor.Randn[float32](tensor.Shape{2, 10, 64}, backend)
	out := stack.Forward(Single(x, nil), nil)
	assert.Equal(t, tensor.Shape{2, 10, 32}, out.Shape())
}

func TestTransformerNamedInputsEqualManualConcat(t *testing.T) {
	backend := cpu.New()
	stack := NewTransformer(DefaultTransformerConfig(2, 16, 4), backend)

	tracks := tensor.Randn[float32](tensor.Shape{2, 6, 16}, backend)
	hits := tensor.Randn[float32](tensor.Shape{2, 4, 16}, backend)
	trackPad := tensor.Zeros[bool](tensor.Shape{2, 6}, backend)
	hitPad := tensor.Zeros[bool](tensor.Shape{2, 4}, backend)

	named := stack.Forward(Named(
		NamedSequence[cpuB]{Name: "tracks", X: tracks, Pad: trackPad},
		NamedSequence[cpuB]{Name: "hits", X: hits, Pad: hitPad},
	), nil)

	x := tensor.Cat([]*tensor.Tensor[float32, cpuB]{tracks, hits}, 1)
	pad := tensor.Cat([]*tensor.Tensor[bool, cpuB]{trackPad, hitPad}, 1)
	single := stack.Forward(Single(x, pad), nil)

	require.Equal(t, single.Shape(), named.Shape())
	assert.Equal(t, single.Data(), named.Data())
}

func TestTransformerNamedInputPadConsistency(t *testing.T) {
	backend := cpu.New()
	stack := NewTransformer(DefaultTransformerConfig(1, 16, 4), backend)

	a := tensor.Randn[float32](tensor.Shape{1, 3, 16}, backend)
	b := tensor.Randn[float32](tensor.Shape{1, 2, 16}, backend)
	aPad := tensor.Zeros[bool](tensor.Shape{1, 3}, backend)

	// One part with a mask, one without: must panic.
	assert.Panics(t, func() {
		stack.Forward(Named(
			NamedSequence[cpuB]{Name: "a", X: a, Pad: aPad},
			NamedSequence[cpuB]{Name: "b", X: b},
		), nil)
	})
}

func TestTransformerFeaturewiseInjection(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultTransformerConfig(2, 16, 4)
	cfg.FeatureDim = 3
	stack := NewTransformer(cfg, backend)

	x := tensor.Randn[float32](tensor.Shape{2, 5, 16}, backend)
	feats := tensor.Randn[float32](tensor.Shape{2, 3}, backend)

	out := stack.Forward(Single(x, nil), feats)
	assert.Equal(t, tensor.Shape{2, 5, 16}, out.Shape())

	// Different features must change the output.
	other := stack.Forward(Single(x, nil), feats.MulScalar(3))
	assert.NotEqual(t, out.Data(), other.Data())

	// Missing features when configured, or features when unconfigured, panic.
	assert.Panics(t, func() { stack.Forward(Single(x, nil), nil) })

	plain := NewTransformer(DefaultTransformerConfig(1, 16, 4), backend)
	assert.Panics(t, func() { plain.Forward(Single(x, nil), feats) })
}

func TestTransformerFullyPaddedBatchEntryNoNaN(t *testing.T) {
	backend := cpu.New()
	stack := NewTransformer(DefaultTransformerConfig(2, 16, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{2, 4, 16}, backend)

	// Batch entry 1 is entirely padding.
	padData := make([]bool, 2*4)
	for j := 0; j < 4; j++ {
		padData[4+j] = true
	}
	pad, err := tensor.FromSlice(padData, tensor.Shape{2, 4}, backend)
	require.NoError(t, err)

	out := stack.Forward(Single(x, pad), nil)
	for i, v := range out.Data() {
		require.False(t, math.IsNaN(float64(v)), "NaN at %d", i)
	}
}

func TestTransformerConfigValidation(t *testing.T) {
	backend := cpu.New()

	cfg := DefaultTransformerConfig(0, 16, 4)
	assert.Panics(t, func() { NewTransformer(cfg, backend) })

	mismatch := DefaultTransformerConfig(1, 16, 4)
	mismatch.Attention.EmbedDim = 32
	assert.Panics(t, func() { NewTransformer(mismatch, backend) })
}

func TestTransformerParameters(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultTransformerConfig(2, 16, 4)
	cfg.OutDim = 8
	cfg.FeatureDim = 3
	stack := NewTransformer(cfg, backend)

	assert.Greater(t, stack.NumParameters(), 0)
	assert.NotNil(t, stack.OutProj)
	assert.Len(t, stack.Featurewise, 2)
	assert.Len(t, stack.Layers, 2)
}

func TestDecoderLayerShape(t *testing.T) {
	backend := cpu.New()
	layer := NewDecoderLayer(DefaultLayerConfig(16, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{2, 5, 16}, backend)
	kv := tensor.Randn[float32](tensor.Shape{2, 9, 16}, backend)
	kvMask := tensor.Zeros[bool](tensor.Shape{2, 9}, backend)

	out := layer.Forward(x, kv, kvMask, nil)
	assert.Equal(t, tensor.Shape{2, 5, 16}, out.Shape())
	assert.NotEmpty(t, layer.Parameters())
}

func TestEncoderLayerResidualPath(t *testing.T) {
	backend := cpu.New()
	layer := NewEncoderLayer(DefaultLayerConfig(16, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{1, 4, 16}, backend)
	out := layer.Forward(x, nil, nil)

	require.Equal(t, x.Shape(), out.Shape())
	// Residual connections: output must differ from input but stay correlated;
	// a cheap proxy is that it is not identical and not wildly larger.
	assert.NotEqual(t, x.Data(), out.Data())
}

func BenchmarkTransformerForward(b *testing.B) {
	backend := cpu.New()
	stack := NewTransformer(DefaultTransformerConfig(4, 64, 8), backend)

	x := tensor.Randn[float32](tensor.Shape{4, 40, 64}, backend)
	pad := tensor.Zeros[bool](tensor.Shape{4, 40}, backend)
	in := Single(x, pad)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stack.Forward(in, nil)
	}
}
