package tensor

import "fmt"

// BroadcastShapes computes the NumPy-style broadcast shape of a and b.
// Shapes are right-aligned; each pair of dimensions must be equal or one of
// them must be 1. Returns the output shape and whether any broadcasting is
// actually needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	rank := len(a)
	if len(b) > rank {
		rank = len(b)
	}

	out := make(Shape, rank)
	needsBroadcast := len(a) != len(b)
	for i := 0; i < rank; i++ {
		da, db := 1, 1
		if i >= rank-len(a) {
			da = a[i-(rank-len(a))]
		}
		if i >= rank-len(b) {
			db = b[i-(rank-len(b))]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
			needsBroadcast = true
		case db == 1:
			out[i] = da
			needsBroadcast = true
		default:
			return nil, false, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, needsBroadcast, nil
}

// BroadcastStrides returns the effective strides of shape when broadcast to
// outShape: broadcast dimensions (size 1, or missing leading dimensions) get
// stride 0 so that repeated reads hit the same element.
func BroadcastStrides(shape Shape, outShape Shape) []int {
	strides := shape.ComputeStrides()
	out := make([]int, len(outShape))
	offset := len(outShape) - len(shape)
	for i := range outShape {
		if i < offset {
			out[i] = 0
			continue
		}
		if shape[i-offset] == 1 && outShape[i] != 1 {
			out[i] = 0
		} else {
			out[i] = strides[i-offset]
		}
	}
	return out
}
