package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The scaled-dot-product kernel used by the nn package is built entirely from
// these primitives, so an alternative backend (GPU, BLAS variant, ...) can be
// swapped in without touching the layer code.
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting).
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Matrix operations.
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul performs batched matrix multiplication for 3D/4D tensors.
	// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
	// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Expand(x *RawTensor, shape Shape) *RawTensor

	// Scalar operations (element-wise with scalar).
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Math operations.
	Rsqrt(x *RawTensor) *RawTensor
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reduction operations.
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor

	// Boolean operations (element-wise on bool tensors, with broadcasting).
	Or(a, b *RawTensor) *RawTensor
	And(a, b *RawTensor) *RawTensor
	Not(x *RawTensor) *RawTensor

	// Manipulation operations.
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Type conversion.
	Cast(x *RawTensor, dtype DataType) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}
