package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/ftag-ml/trackformer/internal/parallel"
	"github.com/ftag-ml/trackformer/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
// The inner product is delegated to gonum's BLAS sgemm.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("matmul: unsupported dtypes %s @ %s (only float32 supported)", a.DType(), b.DType()))
	}

	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v @ %v", aShape, bShape))
	}
	m, k := aShape[0], aShape[1]
	k2, n := bShape[0], bShape[1]
	if k != k2 {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", aShape, bShape))
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}

	gemm(a.AsFloat32(), b.AsFloat32(), result.AsFloat32(), m, k, n)
	return result
}

// BatchMatMul performs batched matrix multiplication for 3D/4D tensors.
//
//	3D: [B, M, K] @ [B, K, N] -> [B, M, N]
//	4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
//
// The per-batch sgemm calls fan out across cores.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("batchmatmul: unsupported dtypes %s @ %s (only float32 supported)", a.DType(), b.DType()))
	}

	aShape, bShape := a.Shape(), b.Shape()
	ndim := len(aShape)
	if ndim != 3 && ndim != 4 {
		panic(fmt.Sprintf("batchmatmul: expected 3D or 4D tensors, got %v", aShape))
	}
	if len(bShape) != ndim {
		panic(fmt.Sprintf("batchmatmul: rank mismatch: %v @ %v", aShape, bShape))
	}

	// Leading (batch) dimensions must match exactly.
	batches := 1
	for d := 0; d < ndim-2; d++ {
		if aShape[d] != bShape[d] {
			panic(fmt.Sprintf("batchmatmul: batch dimensions do not match: %v @ %v", aShape, bShape))
		}
		batches *= aShape[d]
	}

	m, k := aShape[ndim-2], aShape[ndim-1]
	k2, n := bShape[ndim-2], bShape[ndim-1]
	if k != k2 {
		panic(fmt.Sprintf("batchmatmul: inner dimensions do not match: %v @ %v", aShape, bShape))
	}

	outShape := aShape.Clone()
	outShape[ndim-1] = n
	result, err := tensor.NewRaw(outShape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("batchmatmul: %v", err))
	}

	av, bv, cv := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	aStride, bStride, cStride := m*k, k*n, m*n

	parallel.For(batches, func(i int) {
		gemm(
			av[i*aStride:(i+1)*aStride],
			bv[i*bStride:(i+1)*bStride],
			cv[i*cStride:(i+1)*cStride],
			m, k, n,
		)
	}, cpu.par)

	return result
}

// gemm computes c = a @ b for row-major flat slices via BLAS.
func gemm(a, b, c []float32, m, k, n int) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
