package tensor

// Cat concatenates tensors along the given dimension.
// All tensors must have the same shape except in the concatenation dimension.
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	if len(tensors) == 0 {
		panic("Cat: empty tensor list")
	}
	raws := make([]*RawTensor, len(tensors))
	for i, t := range tensors {
		raws[i] = t.raw
	}
	b := tensors[0].backend
	return New[T, B](b.Cat(raws, dim), b)
}

// Unsqueeze inserts a dimension of size 1 at the given position.
func (t *Tensor[T, B]) Unsqueeze(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Unsqueeze(t.raw, dim), t.backend)
}

// Squeeze removes a dimension of size 1 at the given position.
func (t *Tensor[T, B]) Squeeze(dim int) *Tensor[T, B] {
	return New[T, B](t.backend.Squeeze(t.raw, dim), t.backend)
}

// Narrow returns a contiguous slice [start, start+length) along a dimension.
// The result is a copy, not a view.
func (t *Tensor[T, B]) Narrow(dim, start, length int) *Tensor[T, B] {
	return New[T, B](t.backend.Narrow(t.raw, dim, start, length), t.backend)
}

// Tile repeats a size-1 dimension the given number of times.
func (t *Tensor[T, B]) Tile(dim, repeats int) *Tensor[T, B] {
	return New[T, B](t.backend.Tile(t.raw, dim, repeats), t.backend)
}

// Cholesky factorizes each matrix of a [B, K, K] batch into its lower
// triangular Cholesky factor. Returns an error naming the batch index when a
// matrix is not positive-definite.
func (t *Tensor[T, B]) Cholesky() (*Tensor[T, B], error) {
	raw, err := t.backend.Cholesky(t.raw)
	if err != nil {
		return nil, err
	}
	return New[T, B](raw, t.backend), nil
}

// TriangularSolve solves batched triangular systems with t as the stack of
// lower-triangular factors. See Backend.TriangularSolve for the exact
// left/right and transpose semantics.
func (t *Tensor[T, B]) TriangularSolve(b *Tensor[T, B], left, transpose bool) *Tensor[T, B] {
	return New[T, B](t.backend.TriangularSolve(t.raw, b.raw, left, transpose), t.backend)
}

// BatchDiagonal extracts the main diagonal of each matrix of a [B, K, K]
// batch, producing [B, K].
func (t *Tensor[T, B]) BatchDiagonal() *Tensor[T, B] {
	return New[T, B](t.backend.BatchDiagonal(t.raw), t.backend)
}
