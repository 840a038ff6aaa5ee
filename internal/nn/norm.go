package nn

import (
	"fmt"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// NormStyle selects the normalization layer used by encoder/decoder blocks.
// Closed set; an unknown style is a construction error.
type NormStyle int

// Supported normalization styles.
const (
	NormLayer NormStyle = iota // LayerNorm: centered, scaled and shifted.
	NormRMS                    // RMSNorm: scale-only, no centering.
)

// String returns the style name.
func (s NormStyle) String() string {
	switch s {
	case NormLayer:
		return "layernorm"
	case NormRMS:
		return "rmsnorm"
	default:
		return fmt.Sprintf("NormStyle(%d)", int(s))
	}
}

// Normalizer is the interface shared by LayerNorm and RMSNorm. Each instance
// owns its parameters, so every residual block gets independent gains.
type Normalizer[B tensor.Backend] interface {
	Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Parameters() []*Parameter[B]
}

// newNormalizer constructs the normalization layer for a style.
func newNormalizer[B tensor.Backend](style NormStyle, dim int, eps float32, backend B) Normalizer[B] {
	switch style {
	case NormLayer:
		return NewLayerNorm(dim, eps, backend)
	case NormRMS:
		return NewRMSNorm(dim, eps, backend)
	default:
		panic(fmt.Sprintf("unknown norm style %d", int(style)))
	}
}
