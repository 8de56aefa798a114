package tape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddShapeMismatch(t *testing.T) {
	a := FromSlice([]float32{1, 2}, 2)
	b := FromSlice([]float32{1, 2, 3}, 3)
	_, err := Add(a, b)
	assert.Error(t, err)
}

func TestMatMulShapeMismatch(t *testing.T) {
	a := FromSlice([]float32{1, 2}, 1, 2)
	b := FromSlice([]float32{1, 2, 3}, 3, 1)
	_, err := MatMul(a, b)
	assert.Error(t, err)
}

func TestMeanValue(t *testing.T) {
	a := FromSlice([]float32{1, 2, 3, 4}, 4)
	m, err := Mean(a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDelta(t, 2.5, float64(m.Scalar()), 1e-6)
}

func TestAbsGradUsesSign(t *testing.T) {
	x := leaf(t, []float32{-2, 0, 3}, 3)
	a, err := Abs(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := Sum(a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{2, 0, 3}, a.Data())
	assert.Equal(t, []float32{-1, 0, 1}, x.Grad().Data())
}

func TestLeakyReLU(t *testing.T) {
	x := leaf(t, []float32{-1, 2}, 2)
	y, err := LeakyReLU(x, 0.2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := Sum(y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDeltaSlice(t, []float64{-0.2, 2}, asF64(y.Data()), 1e-6)
	assert.InDeltaSlice(t, []float64{0.2, 1}, asF64(x.Grad().Data()), 1e-6)
}

func TestAddBiasGrad(t *testing.T) {
	x := leaf(t, []float32{1, 2, 3, 4}, 2, 2)
	b := leaf(t, []float32{10, 20}, 2)
	y, err := AddBias(x, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{11, 22, 13, 24}, y.Data())

	s, err := Sum(y)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{2, 2}, b.Grad().Data(), "bias gradient sums over rows")
}

func TestNarrowLastGrad(t *testing.T) {
	x := leaf(t, []float32{1, 2, 3, 4}, 1, 4)
	n, err := NarrowLast(x, 2, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{3, 4}, n.Data())

	s, err := Sum(n)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{0, 0, 1, 1}, x.Grad().Data())
}

func TestNarrowLastBadRange(t *testing.T) {
	x := FromSlice([]float32{1, 2}, 1, 2)
	_, err := NarrowLast(x, 1, 1)
	assert.Error(t, err)
}

func TestConcatLastGrad(t *testing.T) {
	a := leaf(t, []float32{1, 2}, 1, 2)
	b := leaf(t, []float32{3}, 1, 1)
	c, err := ConcatLast(a, b)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{1, 2, 3}, c.Data())

	sc, err := Scale(c, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := Sum(sc)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []float32{2, 2}, a.Grad().Data())
	assert.Equal(t, []float32{2}, b.Grad().Data())
}

func TestStackFramesLayoutAndGrad(t *testing.T) {
	assert := assert.New(t)
	// two 1-sample, 1-channel, 1x2 frames
	f0 := leaf(t, []float32{1, 2}, 1, 1, 1, 2)
	f1 := leaf(t, []float32{3, 4}, 1, 1, 1, 2)

	v, err := StackFrames([]*Node{f0, f1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]int{1, 1, 2, 1, 2}, []int(v.Shape()))
	// time-major within each channel: frame 0 then frame 1
	assert.Equal([]float32{1, 2, 3, 4}, v.Data())

	s, err := Sum(v)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]float32{1, 1}, f0.Grad().Data())
	assert.Equal([]float32{1, 1}, f1.Grad().Data())
}

func TestStackSeqLayout(t *testing.T) {
	s0 := FromSlice([]float32{1, 2, 10, 20}, 2, 2)
	s1 := FromSlice([]float32{3, 4, 30, 40}, 2, 2)
	traj, err := StackSeq([]*Node{s0, s1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, []int{2, 2, 2}, []int(traj.Shape()))
	assert.Equal(t, []float32{1, 2, 3, 4, 10, 20, 30, 40}, traj.Data())
}

func TestBCE(t *testing.T) {
	out := leaf(t, []float32{0.5}, 1)
	target := FromSlice([]float32{1}, 1)
	loss, err := BCE(out, target)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.InDelta(t, 0.6931, float64(loss.Scalar()), 1e-3)

	if err := loss.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	// d/do of -log(o) at 0.5
	assert.InDelta(t, -2.0, float64(out.Grad().Data()[0]), 1e-4)
}
