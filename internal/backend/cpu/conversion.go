package cpu

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/ftag-ml/trackformer/internal/tensor"
)

// Cast converts a tensor to the given dtype. Casting to the same dtype
// returns a deep copy. Supported conversions cover the float family:
// float32 <-> float64 and float32 <-> float16 (half is storage-only, so
// compute paths round-trip through float32).
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result, err := tensor.NewRaw(x.Shape(), dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cast: %v", err))
	}

	switch {
	case x.DType() == tensor.Float32 && dtype == tensor.Float64:
		src, dst := x.AsFloat32(), result.AsFloat64()
		for i, v := range src {
			dst[i] = float64(v)
		}
	case x.DType() == tensor.Float64 && dtype == tensor.Float32:
		src, dst := x.AsFloat64(), result.AsFloat32()
		for i, v := range src {
			dst[i] = float32(v)
		}
	case x.DType() == tensor.Float32 && dtype == tensor.Float16:
		src, dst := x.AsFloat32(), result.AsFloat16()
		for i, v := range src {
			dst[i] = float16.Fromfloat32(v)
		}
	case x.DType() == tensor.Float16 && dtype == tensor.Float32:
		src, dst := x.AsFloat16(), result.AsFloat32()
		for i, v := range src {
			dst[i] = v.Float32()
		}
	case x.DType() == tensor.Int32 && dtype == tensor.Float32:
		src, dst := x.AsInt32(), result.AsFloat32()
		for i, v := range src {
			dst[i] = float32(v)
		}
	default:
		panic(fmt.Sprintf("cast: unsupported conversion %s -> %s", x.DType(), dtype))
	}

	return result
}
