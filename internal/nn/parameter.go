package nn

import (
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Parameter is a named weight tensor owned by a layer.
//
// The stack is forward-only, so parameters carry no gradient state; they exist
// for initialization, introspection and external weight loading.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

// NewParameter wraps an initialized tensor as a named parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name (e.g. "weight", "bias", "gamma").
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor. Mutating its data updates the layer
// in place, which is how external weights are loaded.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// NumElements returns the parameter's element count.
func (p *Parameter[B]) NumElements() int {
	return p.tensor.NumElements()
}
