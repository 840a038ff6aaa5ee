package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftag-ml/trackformer/internal/backend/cpu"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

type cpuB = *cpu.CPUBackend

func boolTensor(t *testing.T, backend cpuB, data []bool, shape tensor.Shape) *tensor.Tensor[bool, cpuB] {
	t.Helper()
	m, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return m
}

func TestMergeMasksAllAbsent(t *testing.T) {
	qShape := tensor.Shape{2, 3, 8}
	kShape := tensor.Shape{2, 4, 8}

	got := MergeMasks[cpuB](nil, nil, nil, qShape, kShape)
	assert.Nil(t, got)
}

func TestMergeMasksTruthTable(t *testing.T) {
	backend := cpu.New()
	batch, seqQ, seqK := 1, 2, 3
	qShape := tensor.Shape{batch, seqQ, 8}
	kShape := tensor.Shape{batch, seqK, 8}

	// Query 1 is padded; key 2 is padded; pair (0,1) is explicitly forbidden.
	qMask := boolTensor(t, backend, []bool{false, true}, tensor.Shape{batch, seqQ})
	kvMask := boolTensor(t, backend, []bool{false, false, true}, tensor.Shape{batch, seqK})
	attnMask := boolTensor(t, backend, []bool{
		false, true, false,
		false, false, false,
	}, tensor.Shape{batch, seqQ, seqK})

	cases := []struct {
		name     string
		q, kv, a *tensor.Tensor[bool, cpuB]
		want     []bool // (seqQ, seqK) row-major, true = forbidden
	}{
		{"q only", qMask, nil, nil, []bool{
			false, false, false,
			true, true, true,
		}},
		{"kv only", nil, kvMask, nil, []bool{
			false, false, true,
			false, false, true,
		}},
		{"attn only", nil, nil, attnMask, []bool{
			false, true, false,
			false, false, false,
		}},
		{"q and kv", qMask, kvMask, nil, []bool{
			false, false, true,
			true, true, true,
		}},
		{"q and attn", qMask, nil, attnMask, []bool{
			false, true, false,
			true, true, true,
		}},
		{"kv and attn", nil, kvMask, attnMask, []bool{
			false, true, true,
			false, false, true,
		}},
		{"all three", qMask, kvMask, attnMask, []bool{
			false, true, true,
			true, true, true,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeMasks(tc.q, tc.kv, tc.a, qShape, kShape)
			require.NotNil(t, got)
			assert.Equal(t, tensor.Shape{batch, seqQ, seqK}, got.Shape())
			assert.Equal(t, tc.want, got.Data())
		})
	}
}

func TestMergeMasksShapeValidation(t *testing.T) {
	backend := cpu.New()
	qShape := tensor.Shape{2, 3, 8}
	kShape := tensor.Shape{2, 4, 8}

	// Wrong sequence length on the kv mask.
	bad := boolTensor(t, backend, make([]bool, 2*3), tensor.Shape{2, 3})
	assert.Panics(t, func() {
		MergeMasks[cpuB](nil, bad, nil, qShape, kShape)
	})
}

func TestMergeMasksAttnOnlyPassthrough(t *testing.T) {
	backend := cpu.New()
	qShape := tensor.Shape{1, 2, 8}
	kShape := tensor.Shape{1, 2, 8}

	attnMask := boolTensor(t, backend, []bool{false, true, true, false}, tensor.Shape{1, 2, 2})
	got := MergeMasks[cpuB](nil, nil, attnMask, qShape, kShape)

	// With no padding masks the explicit mask is returned as-is.
	assert.Equal(t, attnMask, got)
}
