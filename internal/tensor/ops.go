package tensor

// Add performs element-wise addition with broadcasting.
//
// Example:
//
//	a := tensor.Ones[float32](Shape{3, 1}, backend)
//	b := tensor.Ones[float32](Shape{3, 5}, backend)
//	c := a.Add(b) // Shape: [3, 5] (broadcasted)
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Add(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T, B]) Sub(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Sub(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T, B]) Mul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Mul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// MatMul performs matrix multiplication.
//
//	(M, K) @ (K, N) -> (M, N)
func (t *Tensor[T, B]) MatMul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.MatMul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// BatchMatMul performs batched matrix multiplication over the leading
// dimensions of 3D/4D tensors.
func (t *Tensor[T, B]) BatchMatMul(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.BatchMatMul(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Reshape returns a tensor with the same data but different shape.
// The new shape must have the same number of elements.
func (t *Tensor[T, B]) Reshape(newShape ...int) *Tensor[T, B] {
	result := t.backend.Reshape(t.raw, Shape(newShape))
	return New[T, B](result, t.backend)
}

// Transpose transposes the tensor by permuting its dimensions.
//
// If axes is empty, reverses all dimensions (for 2D, this is standard
// transpose). Otherwise, axes specifies the permutation.
func (t *Tensor[T, B]) Transpose(axes ...int) *Tensor[T, B] {
	result := t.backend.Transpose(t.raw, axes...)
	return New[T, B](result, t.backend)
}

// Unsqueeze inserts a dimension of size 1 at the given position.
// Supports negative indexing relative to the output rank.
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	result := t.backend.Unsqueeze(t.raw, dim)
	return New[T, B](result, t.backend)
}

// Expand broadcasts the tensor to a new shape.
//
// The new shape must be compatible with the current shape according to
// NumPy broadcasting rules. Dimensions of size 1 can be broadcast to any size.
func (t *Tensor[T, B]) Expand(shape Shape) *Tensor[T, B] {
	result := t.backend.Expand(t.raw, shape)
	return New[T, B](result, t.backend)
}

// MulScalar multiplies each element of the tensor by a scalar value.
func (t *Tensor[T, B]) MulScalar(scalar T) *Tensor[T, B] {
	result := t.backend.MulScalar(t.raw, scalar)
	return New[T, B](result, t.backend)
}

// AddScalar adds a scalar value to each element of the tensor.
func (t *Tensor[T, B]) AddScalar(scalar T) *Tensor[T, B] {
	result := t.backend.AddScalar(t.raw, scalar)
	return New[T, B](result, t.backend)
}

// Rsqrt computes the reciprocal square root (1/sqrt(x)) of each element.
func (t *Tensor[T, B]) Rsqrt() *Tensor[T, B] {
	result := t.backend.Rsqrt(t.raw)
	return New[T, B](result, t.backend)
}

// Softmax computes the softmax function along the specified dimension.
// Supports negative dimension indexing (-1 = last dimension).
func (t *Tensor[T, B]) Softmax(dim int) *Tensor[T, B] {
	result := t.backend.Softmax(t.raw, dim)
	return New[T, B](result, t.backend)
}

// MeanDim computes the mean along a dimension, optionally keeping it as
// a size-1 dimension.
func (t *Tensor[T, B]) MeanDim(dim int, keepDim bool) *Tensor[T, B] {
	result := t.backend.MeanDim(t.raw, dim, keepDim)
	return New[T, B](result, t.backend)
}

// SumDim computes the sum along a dimension, optionally keeping it as
// a size-1 dimension.
func (t *Tensor[T, B]) SumDim(dim int, keepDim bool) *Tensor[T, B] {
	result := t.backend.SumDim(t.raw, dim, keepDim)
	return New[T, B](result, t.backend)
}

// Or computes element-wise logical OR between two boolean tensors,
// with broadcasting.
func (t *Tensor[T, B]) Or(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.Or(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// And computes element-wise logical AND between two boolean tensors,
// with broadcasting.
func (t *Tensor[T, B]) And(other *Tensor[T, B]) *Tensor[T, B] {
	result := t.backend.And(t.raw, other.raw)
	return New[T, B](result, t.backend)
}

// Not computes element-wise logical NOT of a boolean tensor.
func (t *Tensor[T, B]) Not() *Tensor[T, B] {
	result := t.backend.Not(t.raw)
	return New[T, B](result, t.backend)
}

// Cat concatenates tensors along the specified dimension.
// All tensors must share shape except along dim.
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.Raw()
	}
	result := tensors[0].backend.Cat(raws, dim)
	return New[T, B](result, tensors[0].backend)
}

// Half casts the tensor to float16 storage.
// The result is storage-only: convert back with Float32 before computing.
func (t *Tensor[T, B]) Half() *RawTensor {
	return t.backend.Cast(t.raw, Float16)
}

// Float32 casts the tensor (or a float16 storage tensor via raw) to float32.
func (t *Tensor[T, B]) Float32() *Tensor[float32, B] {
	result := t.backend.Cast(t.raw, Float32)
	return New[float32, B](result, t.backend)
}
