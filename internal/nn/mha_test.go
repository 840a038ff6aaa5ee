package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftag-ml/trackformer/internal/backend/cpu"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

func TestAttentionOutputShapeUnderAllMaskConfigs(t *testing.T) {
	backend := cpu.New()
	batch, seqQ, seqK, embedDim := 2, 5, 7, 16

	attn := NewAttention(DefaultAttentionConfig(embedDim, 4), backend)

	q := tensor.Randn[float32](tensor.Shape{batch, seqQ, embedDim}, backend)
	kv := tensor.Randn[float32](tensor.Shape{batch, seqK, embedDim}, backend)

	qMask := tensor.Zeros[bool](tensor.Shape{batch, seqQ}, backend)
	kvMask := tensor.Zeros[bool](tensor.Shape{batch, seqK}, backend)
	attnMask := tensor.Zeros[bool](tensor.Shape{batch, seqQ, seqK}, backend)

	cases := []struct {
		name     string
		q, kv    *tensor.Tensor[bool, cpuB]
		explicit *tensor.Tensor[bool, cpuB]
	}{
		{"no masks", nil, nil, nil},
		{"q", qMask, nil, nil},
		{"kv", nil, kvMask, nil},
		{"attn", nil, nil, attnMask},
		{"q+kv", qMask, kvMask, nil},
		{"q+attn", qMask, nil, attnMask},
		{"kv+attn", nil, kvMask, attnMask},
		{"all", qMask, kvMask, attnMask},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := attn.Forward(q, kv, kv, tc.q, tc.kv, tc.explicit)
			assert.Equal(t, tensor.Shape{batch, seqQ, embedDim}, out.Shape())
		})
	}
}

func TestRepeatKVIdentityWhenSingleRepeat(t *testing.T) {
	backend := cpu.New()
	kv := tensor.Randn[float32](tensor.Shape{2, 4, 5, 8}, backend)

	got := repeatKV(kv, 1)
	assert.Same(t, kv, got)
}

func TestRepeatKVInterleavedLayout(t *testing.T) {
	backend := cpu.New()
	// One batch, 2 kv heads, 1 position, 2 dims: head values distinguishable.
	kv, err := tensor.FromSlice([]float32{
		1, 2, // head 0
		3, 4, // head 1
	}, tensor.Shape{1, 2, 1, 2}, backend)
	require.NoError(t, err)

	got := repeatKV(kv, 3)
	require.Equal(t, tensor.Shape{1, 6, 1, 2}, got.Shape())

	// kv head h lands in query heads [h*nRep, (h+1)*nRep).
	assert.Equal(t, []float32{
		1, 2, 1, 2, 1, 2,
		3, 4, 3, 4, 3, 4,
	}, got.Data())
}

func TestAttentionFullyPaddedSequenceNoNaN(t *testing.T) {
	backend := cpu.New()
	batch, seq, embedDim := 2, 4, 16

	attn := NewAttention(DefaultAttentionConfig(embedDim, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{batch, seq, embedDim}, backend)
	allPadded := tensor.Ones[bool](tensor.Shape{batch, seq}, backend)

	// Every kv position padded: without zero-attention every row would be NaN.
	out := attn.Forward(x, x, x, nil, allPadded, nil)
	for i, v := range out.Data() {
		require.False(t, math.IsNaN(float64(v)), "NaN at %d", i)
	}
}

func TestAttentionPaddedValuesDoNotLeak(t *testing.T) {
	backend := cpu.New()
	batch, seq, embedDim := 1, 6, 16

	attn := NewAttention(DefaultAttentionConfig(embedDim, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{batch, seq, embedDim}, backend)

	// Positions 4 and 5 are padding.
	pad, err := tensor.FromSlice([]bool{false, false, false, false, true, true},
		tensor.Shape{batch, seq}, backend)
	require.NoError(t, err)

	before := attn.Forward(x, x, x, nil, pad, nil)

	// Scramble the padded rows; valid query outputs must not move.
	scrambled := x.Clone()
	data := scrambled.Data()
	for pos := 4; pos < 6; pos++ {
		for d := 0; d < embedDim; d++ {
			data[pos*embedDim+d] = 1e3 * float32(pos+d)
		}
	}
	after := attn.Forward(scrambled, scrambled, scrambled, nil, pad, nil)

	bd, ad := before.Data(), after.Data()
	for pos := 0; pos < 4; pos++ {
		for d := 0; d < embedDim; d++ {
			i := pos*embedDim + d
			assert.InDelta(t, bd[i], ad[i], 1e-4, "position %d dim %d", pos, d)
		}
	}
}

func TestAttentionGroupedKVHeads(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultAttentionConfig(32, 8)
	cfg.NumKVHeads = 2 // 4 query heads per kv head

	attn := NewAttention(cfg, backend)
	x := tensor.Randn[float32](tensor.Shape{2, 5, 32}, backend)

	out := attn.Forward(x, x, x, nil, nil, nil)
	assert.Equal(t, tensor.Shape{2, 5, 32}, out.Shape())

	// KV projections are narrower than the query projection.
	assert.Equal(t, 8, attn.WK.OutFeatures())
	assert.Equal(t, 32, attn.WQ.OutFeatures())
}

func TestAttentionWeightsRespectMergedMask(t *testing.T) {
	backend := cpu.New()
	batch, seq, embedDim := 1, 4, 8

	cfg := DefaultAttentionConfig(embedDim, 2)
	cfg.ZeroAttn = false // keep the weight matrix square with the input
	attn := NewAttention(cfg, backend)

	x := tensor.Randn[float32](tensor.Shape{batch, seq, embedDim}, backend)
	pad, err := tensor.FromSlice([]bool{false, false, false, true}, tensor.Shape{batch, seq}, backend)
	require.NoError(t, err)

	_, weights := attn.ForwardWithWeights(x, x, x, nil, pad, nil)
	require.NotNil(t, weights)
	require.Equal(t, tensor.Shape{batch, 2, seq, seq}, weights.Shape())

	// The padded key column carries zero weight in every head and row.
	data := weights.Data()
	for h := 0; h < 2; h++ {
		for i := 0; i < seq; i++ {
			assert.Zero(t, data[h*seq*seq+i*seq+3], "head %d row %d", h, i)
		}
	}
}

func TestFlashBackendRejectsMasks(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultAttentionConfig(16, 4)
	cfg.Backend = Flash

	attn := NewAttention(cfg, backend)
	x := tensor.Randn[float32](tensor.Shape{1, 4, 16}, backend)
	pad := tensor.Zeros[bool](tensor.Shape{1, 4}, backend)

	assert.Panics(t, func() { attn.Forward(x, x, x, nil, pad, nil) })

	// No mask is fine.
	out := attn.Forward(x, x, x, nil, nil, nil)
	assert.Equal(t, tensor.Shape{1, 4, 16}, out.Shape())
}

func TestAttentionConfigValidation(t *testing.T) {
	backend := cpu.New()

	t.Run("embed dim not divisible by heads", func(t *testing.T) {
		cfg := DefaultAttentionConfig(10, 3)
		assert.Panics(t, func() { NewAttention(cfg, backend) })
	})

	t.Run("heads not divisible by kv heads", func(t *testing.T) {
		cfg := DefaultAttentionConfig(16, 4)
		cfg.NumKVHeads = 3
		assert.Panics(t, func() { NewAttention(cfg, backend) })
	})

	t.Run("window on generic backend", func(t *testing.T) {
		cfg := DefaultAttentionConfig(16, 4)
		cfg.WindowSize = 4
		assert.Panics(t, func() { NewAttention(cfg, backend) })
	})

	t.Run("odd window", func(t *testing.T) {
		cfg := DefaultAttentionConfig(16, 4)
		cfg.Backend = Flash
		cfg.WindowSize = 3
		assert.Panics(t, func() { NewAttention(cfg, backend) })
	})

	t.Run("dropout on flash", func(t *testing.T) {
		cfg := DefaultAttentionConfig(16, 4)
		cfg.Backend = Flash
		cfg.Dropout = 0.1
		assert.Panics(t, func() { NewAttention(cfg, backend) })
	})
}

func TestWindowedFlashRequiresMatchingLengths(t *testing.T) {
	backend := cpu.New()
	cfg := DefaultAttentionConfig(16, 4)
	cfg.Backend = Flash
	cfg.WindowSize = 4

	cross := NewCrossAttention(cfg, backend)
	q := tensor.Randn[float32](tensor.Shape{1, 12, 16}, backend)
	kv := tensor.Randn[float32](tensor.Shape{1, 4, 16}, backend)

	// A window narrower than the length gap would leave some queries with an
	// empty key range.
	assert.Panics(t, func() { cross.Forward(q, kv, nil, nil) })

	// Matching lengths stay fine and finite.
	x := tensor.Randn[float32](tensor.Shape{1, 12, 16}, backend)
	self := NewSelfAttention(cfg, backend)
	out := self.Forward(x, nil, nil)
	require.Equal(t, tensor.Shape{1, 12, 16}, out.Shape())
	for i, v := range out.Data() {
		require.False(t, math.IsNaN(float64(v)), "NaN at %d", i)
	}
}

func TestSelfAndCrossAttentionShapes(t *testing.T) {
	backend := cpu.New()
	embedDim := 16

	self := NewSelfAttention(DefaultAttentionConfig(embedDim, 4), backend)
	cross := NewCrossAttention(DefaultAttentionConfig(embedDim, 4), backend)

	x := tensor.Randn[float32](tensor.Shape{2, 5, embedDim}, backend)
	kv := tensor.Randn[float32](tensor.Shape{2, 9, embedDim}, backend)
	kvMask := tensor.Zeros[bool](tensor.Shape{2, 9}, backend)

	assert.Equal(t, tensor.Shape{2, 5, embedDim}, self.Forward(x, nil, nil).Shape())
	assert.Equal(t, tensor.Shape{2, 5, embedDim}, cross.Forward(x, kv, kvMask, nil).Shape())
}

func TestAttentionParameterCount(t *testing.T) {
	backend := cpu.New()
	attn := NewAttention(DefaultAttentionConfig(16, 4), backend)

	// Four biased projections: weight + bias each.
	assert.Len(t, attn.Parameters(), 8)

	cfg := DefaultAttentionConfig(16, 4)
	cfg.Bias = false
	attnNoBias := NewAttention(cfg, backend)
	assert.Len(t, attnNoBias.Parameters(), 4)
}

func BenchmarkAttentionForward(b *testing.B) {
	backend := cpu.New()
	attn := NewAttention(DefaultAttentionConfig(64, 8), backend)

	x := tensor.Randn[float32](tensor.Shape{4, 40, 64}, backend)
	pad := tensor.Zeros[bool](tensor.Shape{4, 40}, backend)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		attn.Forward(x, x, x, nil, pad, nil)
	}
}
