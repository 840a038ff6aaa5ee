package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// AttentionBackend selects the attention kernel. It is fixed at construction;
// Forward dispatches through it at a single point.
type AttentionBackend int

// Available attention kernels.
const (
	// MemEfficient is the generic kernel: materializes scores, supports the
	// full mask pipeline and exposes attention weights.
	MemEfficient AttentionBackend = iota

	// Flash is the streaming-softmax kernel: O(headDim) memory per query and
	// optional sliding-window attention, but no mask support.
	Flash
)

// String returns the kernel name.
func (b AttentionBackend) String() string {
	switch b {
	case MemEfficient:
		return "mem-efficient"
	case Flash:
		return "flash"
	default:
		return fmt.Sprintf("AttentionBackend(%d)", int(b))
	}
}

// AttentionConfig configures a MultiHeadAttention layer.
type AttentionConfig struct {
	EmbedDim   int              // Model dimension; must be divisible by NumHeads.
	NumHeads   int              // Number of query heads.
	NumKVHeads int              // Number of key/value heads; 0 means NumHeads (standard MHA).
	Backend    AttentionBackend // Kernel selection, fixed at construction.
	WindowSize int              // Flash only: even sliding-window width, 0 = global.
	Dropout    float32          // Attention weight dropout rate; 0 = deterministic. Generic kernel only.
	Bias       bool             // Whether projections carry bias vectors.
	ZeroAttn   bool             // Append an always-attendable zero key/value row.
}

// DefaultAttentionConfig returns the standard configuration: full multi-head
// attention on the generic kernel, biased projections, zero-attention on.
func DefaultAttentionConfig(embedDim, numHeads int) AttentionConfig {
	return AttentionConfig{
		EmbedDim:   embedDim,
		NumHeads:   numHeads,
		NumKVHeads: numHeads,
		Backend:    MemEfficient,
		Bias:       true,
		ZeroAttn:   true,
	}
}

// MultiHeadAttention implements masked multi-head attention with grouped
// key/value heads over padded sequences.
//
//	Attention(Q, K, V) = Concat(head_1, ..., head_h) @ W_O
//
// Queries get NumHeads heads; keys and values get NumKVHeads heads, each
// serving a contiguous block of NumHeads/NumKVHeads query heads. Padding and
// explicit masks are merged once (MergeMasks) and applied inside the kernel.
//
// Example:
//
//	cfg := nn.DefaultAttentionConfig(64, 8)
//	attn := nn.NewAttention(cfg, backend)
//	out := attn.Forward(x, x, x, nil, padMask, nil)
type MultiHeadAttention[B tensor.Backend] struct {
	WQ *Linear[B] // [embedDim, numHeads * headDim]
	WK *Linear[B] // [embedDim, numKVHeads * headDim]
	WV *Linear[B] // [embedDim, numKVHeads * headDim]
	WO *Linear[B] // [numHeads * headDim, embedDim]

	config  AttentionConfig
	headDim int
	repeats int // query heads served per kv head
	winL    int // flash window reach, -1 = unbounded
	winR    int
	backend B
}

// NewAttention creates a MultiHeadAttention layer.
//
// Construction panics when the configuration is inconsistent: EmbedDim not
// divisible by NumHeads, NumHeads not divisible by NumKVHeads, an attention
// window on the generic kernel, an odd window size, or dropout on the flash
// kernel (which never materializes the weights dropout acts on).
func NewAttention[B tensor.Backend](cfg AttentionConfig, backend B) *MultiHeadAttention[B] {
	if cfg.NumHeads <= 0 {
		panic(fmt.Sprintf("Attention: NumHeads must be positive, got %d", cfg.NumHeads))
	}
	if cfg.EmbedDim%cfg.NumHeads != 0 {
		panic(fmt.Sprintf("Attention: EmbedDim (%d) must be divisible by NumHeads (%d)",
			cfg.EmbedDim, cfg.NumHeads))
	}
	if cfg.NumKVHeads == 0 {
		cfg.NumKVHeads = cfg.NumHeads
	}
	if cfg.NumHeads%cfg.NumKVHeads != 0 {
		panic(fmt.Sprintf("Attention: NumHeads (%d) must be divisible by NumKVHeads (%d)",
			cfg.NumHeads, cfg.NumKVHeads))
	}
	if cfg.WindowSize != 0 && cfg.Backend != Flash {
		panic(fmt.Sprintf("Attention: WindowSize requires the flash backend, got %s", cfg.Backend))
	}
	if cfg.Backend == Flash && cfg.Dropout > 0 {
		panic("Attention: the flash backend does not support dropout; use the mem-efficient backend")
	}

	winL, winR := -1, -1
	if cfg.Backend == Flash {
		winL, winR = windowBounds(cfg.WindowSize)
	}

	headDim := cfg.EmbedDim / cfg.NumHeads
	kvDim := cfg.NumKVHeads * headDim

	return &MultiHeadAttention[B]{
		WQ:      NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias, backend),
		WK:      NewLinear(cfg.EmbedDim, kvDim, cfg.Bias, backend),
		WV:      NewLinear(cfg.EmbedDim, kvDim, cfg.Bias, backend),
		WO:      NewLinear(cfg.EmbedDim, cfg.EmbedDim, cfg.Bias, backend),
		config:  cfg,
		headDim: headDim,
		repeats: cfg.NumHeads / cfg.NumKVHeads,
		winL:    winL,
		winR:    winR,
		backend: backend,
	}
}

// Forward computes attention over padded sequences.
//
// Args:
//   - query: (batch, seqQ, embedDim)
//   - key, value: (batch, seqK, embedDim)
//   - qMask: optional (batch, seqQ) query padding, true = padded
//   - kvMask: optional (batch, seqK) key padding, true = padded
//   - attnMask: optional (batch, seqQ, seqK) explicit mask, true = forbidden
//
// Returns (batch, seqQ, embedDim). Values at padded query positions are not
// zeroed; callers mask downstream as needed.
func (m *MultiHeadAttention[B]) Forward(
	query, key, value *tensor.Tensor[float32, B],
	qMask, kvMask, attnMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	out, _ := m.ForwardWithWeights(query, key, value, qMask, kvMask, attnMask)
	return out
}

// ForwardWithWeights is Forward plus the attention weights
// (batch, numHeads, seqQ, seqKEff) for introspection. The flash kernel never
// materializes weights, so it returns nil for them.
func (m *MultiHeadAttention[B]) ForwardWithWeights(
	query, key, value *tensor.Tensor[float32, B],
	qMask, kvMask, attnMask *tensor.Tensor[bool, B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	batch := query.Shape()[0]
	seqQ := query.Shape()[1]
	seqK := key.Shape()[1]

	// The window is position-aligned, so query and key positions must
	// coincide; a mismatched cross-attention window could leave a query with
	// an empty key range.
	if m.config.WindowSize != 0 && seqQ != seqK {
		panic(fmt.Sprintf("Attention: a %d-wide window requires matching query/key lengths, got %d and %d",
			m.config.WindowSize, seqQ, seqK))
	}

	// Merge masks on the raw (pre-projection) shapes: true = forbidden.
	merged := MergeMasks(qMask, kvMask, attnMask, query.Shape(), key.Shape())

	q := m.project(query, m.WQ, batch, seqQ)
	k := m.project(key, m.WK, batch, seqK)
	v := m.project(value, m.WV, batch, seqK)

	// Zero-attention: append an all-zero key/value row that every query may
	// attend to. A fully padded kv sequence then softmaxes over one real
	// column instead of none, so no row goes NaN.
	if m.config.ZeroAttn {
		kvDim := k.Shape()[2]
		zeroRow := tensor.Zeros[float32](tensor.Shape{batch, 1, kvDim}, m.backend)
		k = tensor.Cat([]*tensor.Tensor[float32, B]{k, zeroRow}, 1)
		v = tensor.Cat([]*tensor.Tensor[float32, B]{v, zeroRow.Clone()}, 1)
		seqK++

		if merged != nil {
			allowCol := tensor.Zeros[bool](tensor.Shape{batch, seqQ, 1}, m.backend)
			merged = tensor.Cat([]*tensor.Tensor[bool, B]{merged, allowCol}, 2)
		}
	}

	// Head split: (batch, seq, heads, headDim) -> (batch, heads, seq, headDim).
	q = q.Reshape(batch, seqQ, m.config.NumHeads, m.headDim).Transpose(0, 2, 1, 3)
	k = k.Reshape(batch, seqK, m.config.NumKVHeads, m.headDim).Transpose(0, 2, 1, 3)
	v = v.Reshape(batch, seqK, m.config.NumKVHeads, m.headDim).Transpose(0, 2, 1, 3)

	if m.repeats > 1 {
		k = repeatKV(k, m.repeats)
		v = repeatKV(v, m.repeats)
	}

	var attnOut, weights *tensor.Tensor[float32, B]
	switch m.config.Backend {
	case Flash:
		if merged != nil {
			panic("Attention: the flash backend does not support masks; use the mem-efficient backend")
		}
		attnOut = flashAttention(q, k, v, m.winL, m.winR, 0)
	default:
		// Flip forbid -> keep exactly once, at the kernel boundary, and
		// broadcast across heads.
		var keep *tensor.Tensor[bool, B]
		if merged != nil {
			keep = merged.Not().Unsqueeze(1).Expand(tensor.Shape{batch, m.config.NumHeads, seqQ, seqK})
		}
		attnOut, weights = ScaledDotProductAttention(q, k, v, keep, m.config.Dropout, 0)
	}

	// Merge heads and project out.
	attnOut = attnOut.Transpose(0, 2, 1, 3).Reshape(batch*seqQ, m.config.EmbedDim)
	output := m.WO.Forward(attnOut).Reshape(batch, seqQ, m.config.EmbedDim)

	return output, weights
}

// project flattens (batch, seq, dim) around a Linear and restores 3D.
func (m *MultiHeadAttention[B]) project(
	x *tensor.Tensor[float32, B],
	linear *Linear[B],
	batch, seq int,
) *tensor.Tensor[float32, B] {
	out2D := linear.Forward(x.Reshape(batch*seq, x.Shape()[2]))
	return out2D.Reshape(batch, seq, out2D.Shape()[1])
}

// Config returns the construction configuration.
func (m *MultiHeadAttention[B]) Config() AttentionConfig {
	return m.config
}

// Parameters returns the projection parameters (WQ, WK, WV, WO).
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	params = append(params, m.WQ.Parameters()...)
	params = append(params, m.WK.Parameters()...)
	params = append(params, m.WV.Parameters()...)
	params = append(params, m.WO.Parameters()...)
	return params
}

// repeatKV expands grouped key/value heads to the query head count by
// interleaved repetition: kv head h is copied into query heads
// [h*nRep, (h+1)*nRep), so each kv head serves a contiguous block.
//
// Input:  (batch, nKV, seq, headDim)
// Output: (batch, nKV*nRep, seq, headDim)
//
// nRep == 1 returns the input unchanged, which makes grouped attention with
// NumKVHeads == NumHeads bit-identical to standard MHA.
func repeatKV[B tensor.Backend](
	kv *tensor.Tensor[float32, B],
	nRep int,
) *tensor.Tensor[float32, B] {
	if nRep == 1 {
		return kv
	}

	shape := kv.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("repeatKV: expected 4D tensor (batch, nKV, seq, headDim), got shape %v", shape))
	}

	batch, nKV, seqLen, headDim := shape[0], shape[1], shape[2], shape[3]
	headSize := seqLen * headDim

	src := kv.Data()
	dst := make([]float32, batch*nKV*nRep*headSize)

	for b := 0; b < batch; b++ {
		for h := 0; h < nKV; h++ {
			head := src[(b*nKV+h)*headSize : (b*nKV+h+1)*headSize]
			for r := 0; r < nRep; r++ {
				dstBase := (b*nKV*nRep + h*nRep + r) * headSize
				copy(dst[dstBase:dstBase+headSize], head)
			}
		}
	}

	result, err := tensor.FromSlice(dst, tensor.Shape{batch, nKV * nRep, seqLen, headDim}, kv.Backend())
	if err != nil {
		panic(fmt.Sprintf("repeatKV: %v", err))
	}
	return result
}

// SelfAttention attends a sequence to itself: q, k and v are all the input.
type SelfAttention[B tensor.Backend] struct {
	Attn *MultiHeadAttention[B]
}

// NewSelfAttention creates a self-attention wrapper around NewAttention.
func NewSelfAttention[B tensor.Backend](cfg AttentionConfig, backend B) *SelfAttention[B] {
	return &SelfAttention[B]{Attn: NewAttention(cfg, backend)}
}

// Forward computes self-attention. The padding mask is applied on the
// key/value side only; padded queries produce garbage rows that downstream
// consumers are expected to ignore.
func (s *SelfAttention[B]) Forward(
	x *tensor.Tensor[float32, B],
	pad *tensor.Tensor[bool, B],
	attnMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	return s.Attn.Forward(x, x, x, nil, pad, attnMask)
}

// Parameters returns the wrapped attention parameters.
func (s *SelfAttention[B]) Parameters() []*Parameter[B] {
	return s.Attn.Parameters()
}

// CrossAttention attends a query sequence to a separate key/value sequence.
type CrossAttention[B tensor.Backend] struct {
	Attn *MultiHeadAttention[B]
}

// NewCrossAttention creates a cross-attention wrapper around NewAttention.
func NewCrossAttention[B tensor.Backend](cfg AttentionConfig, backend B) *CrossAttention[B] {
	return &CrossAttention[B]{Attn: NewAttention(cfg, backend)}
}

// Forward computes cross-attention of query over kv, masking padded kv
// positions.
func (c *CrossAttention[B]) Forward(
	query, kv *tensor.Tensor[float32, B],
	kvMask *tensor.Tensor[bool, B],
	attnMask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	return c.Attn.Forward(query, kv, kv, nil, kvMask, attnMask)
}

// Parameters returns the wrapped attention parameters.
func (c *CrossAttention[B]) Parameters() []*Parameter[B] {
	return c.Attn.Parameters()
}
