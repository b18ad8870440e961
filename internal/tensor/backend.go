package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// The op set is tailored to Gaussian-process style workloads: element-wise
// arithmetic with NumPy-style broadcasting, batched matrix products, the
// reductions used by empirical covariance estimation, and batched dense
// linear algebra (Cholesky factorization, triangular solves) over a leading
// batch axis.
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul performs batched matrix multiplication for 3D tensors:
	// [B, M, K] @ [B, K, N] -> [B, M, N]
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar any) *RawTensor
	AddScalar(x *RawTensor, scalar any) *RawTensor

	// Math operations (element-wise)
	Exp(x *RawTensor) *RawTensor
	Log(x *RawTensor) *RawTensor
	Sqrt(x *RawTensor) *RawTensor
	Square(x *RawTensor) *RawTensor

	// Reduction operations
	Sum(x *RawTensor) *RawTensor                            // total sum (scalar result)
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor  // sum along dimension
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor // mean along dimension

	// Manipulation operations
	Cat(tensors []*RawTensor, dim int) *RawTensor           // concatenate along dimension
	Unsqueeze(x *RawTensor, dim int) *RawTensor             // add dimension of size 1
	Squeeze(x *RawTensor, dim int) *RawTensor               // remove dimension of size 1
	Narrow(x *RawTensor, dim, start, length int) *RawTensor // contiguous slice along dimension
	Tile(x *RawTensor, dim, repeats int) *RawTensor         // repeat a size-1 dimension

	// Batched linear algebra over a leading batch axis.
	//
	// Cholesky factorizes each [K, K] matrix of a [B, K, K] batch into its
	// lower-triangular factor. A non-positive-definite matrix is a fatal
	// numerical error reported with the offending batch index.
	Cholesky(x *RawTensor) (*RawTensor, error)

	// TriangularSolve solves the batched triangular systems defined by the
	// lower-triangular factors l [B, K, K] against b. With left=true it
	// solves op(L) X = b (b is [B, K, N]); with left=false it solves
	// X op(L) = b (b is [B, N, K]). transpose selects op(L) = Lᵀ.
	// Singular factors are not detected; they surface as non-finite values.
	TriangularSolve(l, b *RawTensor, left, transpose bool) *RawTensor

	// BatchDiagonal extracts the main diagonal of each matrix of a
	// [B, K, K] batch, producing [B, K].
	BatchDiagonal(x *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
