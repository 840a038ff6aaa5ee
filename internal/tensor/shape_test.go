package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	assert.Equal(t, 24, Shape{2, 3, 4}.NumElements())
	assert.Equal(t, 5, Shape{5}.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements()) // scalar
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{2, 3}.Validate())
	assert.Error(t, Shape{2, 0}.Validate())
	assert.Error(t, Shape{-1, 3}.Validate())
}

func TestShapeEqual(t *testing.T) {
	assert.True(t, Shape{2, 3}.Equal(Shape{2, 3}))
	assert.False(t, Shape{2, 3}.Equal(Shape{3, 2}))
	assert.False(t, Shape{2, 3}.Equal(Shape{2, 3, 1}))
}

func TestShapeCloneIsIndependent(t *testing.T) {
	s := Shape{2, 3}
	c := s.Clone()
	c[0] = 7
	assert.Equal(t, Shape{2, 3}, s)
}

func TestShapeComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int{1}, Shape{5}.ComputeStrides())
}

func TestShapeNormalizeDim(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 2, s.NormalizeDim(-1))
	assert.Equal(t, 0, s.NormalizeDim(0))
	assert.Panics(t, func() { s.NormalizeDim(3) })
	assert.Panics(t, func() { s.NormalizeDim(-4) })
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
	}{
		{"same", Shape{2, 3}, Shape{2, 3}, Shape{2, 3}, false},
		{"row", Shape{2, 3}, Shape{1, 3}, Shape{2, 3}, true},
		{"column", Shape{2, 1}, Shape{2, 3}, Shape{2, 3}, true},
		{"rank", Shape{2, 3}, Shape{3}, Shape{2, 3}, true},
		{"scalarish", Shape{4, 1, 5}, Shape{3, 1}, Shape{4, 3, 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, needs, err := BroadcastShapes(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, needs)
		})
	}

	_, _, err := BroadcastShapes(Shape{2, 3}, Shape{2, 4})
	assert.Error(t, err)
}
