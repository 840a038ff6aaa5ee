// Package nn provides the masked attention, gated feed-forward and
// encoder/decoder stack modules for variable-length padded sequences.
package nn

import (
	"fmt"
	"math"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Activation selects the nonlinearity inside GatedDense. Closed set; anything
// else is a construction error.
type Activation int

// Supported activations.
const (
	ReLU Activation = iota
	SiLU
	GELU
)

// String returns the activation name.
func (a Activation) String() string {
	switch a {
	case ReLU:
		return "relu"
	case SiLU:
		return "silu"
	case GELU:
		return "gelu"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// Optional backend capabilities. The CPU backend implements all of these;
// the activation functions assert for them at call time so an alternative
// backend only has to provide what the model actually uses.
type (
	// SigmoidBackend is implemented by backends with a native sigmoid.
	SigmoidBackend interface {
		Sigmoid(x *tensor.RawTensor) *tensor.RawTensor
	}

	// TanhBackend is implemented by backends with a native tanh.
	TanhBackend interface {
		Tanh(x *tensor.RawTensor) *tensor.RawTensor
	}

	// ReLUBackend is implemented by backends with a native ReLU.
	ReLUBackend interface {
		ReLU(x *tensor.RawTensor) *tensor.RawTensor
	}
)

// applyActivation runs the selected activation.
func applyActivation[B tensor.Backend](a Activation, x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	switch a {
	case ReLU:
		return ReLUFunc(x)
	case SiLU:
		return SiLUFunc(x)
	case GELU:
		return GELUFunc(x)
	default:
		panic(fmt.Sprintf("unknown activation %d", int(a)))
	}
}

// ReLUFunc applies f(x) = max(0, x).
func ReLUFunc[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if reluBackend, ok := any(backend).(ReLUBackend); ok {
		return tensor.New[float32, B](reluBackend.ReLU(x.Raw()), backend)
	}
	panic("ReLUFunc: backend must implement ReLU operation")
}

// SigmoidFunc applies the logistic function element-wise.
func SigmoidFunc[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	if sigmoidBackend, ok := any(backend).(SigmoidBackend); ok {
		return tensor.New[float32, B](sigmoidBackend.Sigmoid(x.Raw()), backend)
	}
	panic("SigmoidFunc: backend must implement Sigmoid operation")
}

// SiLUFunc applies f(x) = x * sigmoid(x).
func SiLUFunc[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Mul(SigmoidFunc(x))
}

// GELUFunc applies GELU via the tanh approximation:
// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3))).
func GELUFunc[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	tanhBackend, ok := any(backend).(TanhBackend)
	if !ok {
		panic("GELUFunc: backend must implement Tanh operation")
	}

	sqrt2pi := float32(math.Sqrt(2.0 / math.Pi))
	c := float32(0.044715)

	x3 := x.Mul(x).Mul(x)
	inner := x.Add(x3.MulScalar(c)).MulScalar(sqrt2pi)

	tanh := tensor.New[float32, B](tanhBackend.Tanh(inner.Raw()), backend)
	return x.MulScalar(0.5).Mul(tanh.AddScalar(1.0))
}
