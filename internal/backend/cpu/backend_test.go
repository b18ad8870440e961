package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/vip/internal/tensor"
)

// Helper to create test backend.
func newTestBackend() *CPUBackend {
	return New()
}

// Helper to build a float64 raw tensor from a slice.
func rawFromFloat64(t *testing.T, data []float64, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, tensor.Float64, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw(%v) failed: %v", shape, err)
	}
	copy(raw.AsFloat64(), data)
	return raw
}

// Helper to check float64 slices are equal within epsilon.
func assertFloat64Slice(t *testing.T, want, got []float64, epsilon float64, msg string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: length %d, want %d", msg, len(got), len(want))
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > epsilon {
			t.Fatalf("%s: element %d = %v, want %v", msg, i, got[i], want[i])
		}
	}
}

// TestCPUBackend_New tests backend creation.
func TestCPUBackend_New(t *testing.T) {
	backend := New()
	if backend == nil {
		t.Fatal("New() returned nil")
	}
	if backend.Name() != "CPU" {
		t.Errorf("Expected name 'CPU', got '%s'", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Expected device CPU, got %v", backend.Device())
	}
}

// TestCPUBackend_Add tests element-wise addition.
func TestCPUBackend_Add(t *testing.T) {
	backend := newTestBackend()

	t.Run("SameShape", func(t *testing.T) {
		a := rawFromFloat64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
		b := rawFromFloat64(t, []float64{10, 20, 30, 40, 50, 60}, tensor.Shape{2, 3})

		result := backend.Add(a, b)
		assertFloat64Slice(t, []float64{11, 22, 33, 44, 55, 66}, result.AsFloat64(), 1e-12, "add")
	})

	t.Run("BroadcastRow", func(t *testing.T) {
		// [2, 3] + [3] broadcasts the row over both output rows.
		a := rawFromFloat64(t, []float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
		b := rawFromFloat64(t, []float64{10, 20, 30}, tensor.Shape{3})

		result := backend.Add(a, b)
		if !result.Shape().Equal(tensor.Shape{2, 3}) {
			t.Fatalf("broadcast shape = %v, want [2 3]", result.Shape())
		}
		assertFloat64Slice(t, []float64{11, 22, 33, 14, 25, 36}, result.AsFloat64(), 1e-12, "broadcast add")
	})

	t.Run("BroadcastBoth", func(t *testing.T) {
		// [2, 1] + [1, 3] -> [2, 3].
		a := rawFromFloat64(t, []float64{1, 2}, tensor.Shape{2, 1})
		b := rawFromFloat64(t, []float64{10, 20, 30}, tensor.Shape{1, 3})

		result := backend.Add(a, b)
		assertFloat64Slice(t, []float64{11, 21, 31, 12, 22, 32}, result.AsFloat64(), 1e-12, "two-sided broadcast")
	})
}

// TestCPUBackend_SubMulDiv tests the remaining element-wise operations.
func TestCPUBackend_SubMulDiv(t *testing.T) {
	backend := newTestBackend()
	a := rawFromFloat64(t, []float64{8, 6, 4, 2}, tensor.Shape{4})
	b := rawFromFloat64(t, []float64{2, 3, 4, 1}, tensor.Shape{4})

	assertFloat64Slice(t, []float64{6, 3, 0, 1}, backend.Sub(a, b).AsFloat64(), 1e-12, "sub")
	assertFloat64Slice(t, []float64{16, 18, 16, 2}, backend.Mul(a, b).AsFloat64(), 1e-12, "mul")
	assertFloat64Slice(t, []float64{4, 2, 1, 2}, backend.Div(a, b).AsFloat64(), 1e-12, "div")
}

// TestCPUBackend_ScalarOps tests scalar multiply and add.
func TestCPUBackend_ScalarOps(t *testing.T) {
	backend := newTestBackend()
	x := rawFromFloat64(t, []float64{1, 2, 3}, tensor.Shape{3})

	assertFloat64Slice(t, []float64{2.5, 5, 7.5}, backend.MulScalar(x, 2.5).AsFloat64(), 1e-12, "mulscalar")
	assertFloat64Slice(t, []float64{0, 1, 2}, backend.AddScalar(x, -1.0).AsFloat64(), 1e-12, "addscalar")
}

// TestCPUBackend_MathOps tests the element-wise math functions.
func TestCPUBackend_MathOps(t *testing.T) {
	backend := newTestBackend()
	x := rawFromFloat64(t, []float64{0, 1, 4}, tensor.Shape{3})

	assertFloat64Slice(t, []float64{1, math.E, math.Exp(4)}, backend.Exp(x).AsFloat64(), 1e-12, "exp")
	assertFloat64Slice(t, []float64{0, 1, 2}, backend.Sqrt(x).AsFloat64(), 1e-12, "sqrt")
	assertFloat64Slice(t, []float64{0, 1, 16}, backend.Square(x).AsFloat64(), 1e-12, "square")

	y := rawFromFloat64(t, []float64{1, math.E}, tensor.Shape{2})
	assertFloat64Slice(t, []float64{0, 1}, backend.Log(y).AsFloat64(), 1e-12, "log")
}

// TestCPUBackend_AddDTypeMismatch tests that mixed dtypes panic.
func TestCPUBackend_AddDTypeMismatch(t *testing.T) {
	backend := newTestBackend()
	a := tensor.MustNewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	b := tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)

	defer func() {
		if recover() == nil {
			t.Error("Add with mismatched dtypes did not panic")
		}
	}()
	backend.Add(a, b)
}
