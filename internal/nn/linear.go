package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// Weights are [outFeatures, inFeatures], Xavier-initialized; the bias is
// optional (projection layers in attention can run without it).
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B] // nil when the layer is bias-free
	backend     B
}

// NewLinear creates a Linear layer with an optional bias vector.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, withBias bool, backend B) *Linear[B] {
	weightShape := tensor.Shape{outFeatures, inFeatures}
	weight := NewParameter("weight", Xavier(inFeatures, outFeatures, weightShape, backend))

	var bias *Parameter[B]
	if withBias {
		bias = NewParameter("bias", Zeros(tensor.Shape{outFeatures}, backend))
	}

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward applies the layer to a 2D input [batch, inFeatures] and returns
// [batch, outFeatures]. Higher-rank callers flatten around this.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape))
	}
	if inputShape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, inputShape[1]))
	}

	// x @ W.T: [batch, in] @ [in, out] -> [batch, out]
	output := input.MatMul(l.weight.Tensor().Transpose())

	if l.bias != nil {
		output = output.Add(l.bias.Tensor().Reshape(1, l.outFeatures))
	}

	return output
}

// Parameters returns [weight] or [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	if l.bias != nil {
		return []*Parameter[B]{l.weight, l.bias}
	}
	return []*Parameter[B]{l.weight}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter, or nil for a bias-free layer.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the input width.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}
