package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/vip/internal/backend/cpu"
	"github.com/born-ml/vip/internal/tensor"
)

func TestParameter_New(t *testing.T) {
	backend := cpu.New()
	v := tensor.Ones[float64](tensor.Shape{3, 2}, backend)

	p := NewParameter("q_mu", v)
	assert.Equal(t, "q_mu", p.Name())
	assert.True(t, p.Trainable(), "parameters start trainable")
	assert.Same(t, v, p.Tensor())
}

func TestParameter_FreezeUnfreeze(t *testing.T) {
	backend := cpu.New()
	p := NewParameter("q_sqrt_tri", tensor.Zeros[float64](tensor.Shape{4}, backend))

	p.Freeze()
	assert.False(t, p.Trainable())

	p.Unfreeze()
	assert.True(t, p.Trainable())
}
