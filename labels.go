package hgan

import (
	"github.com/gorgonia/hgan/tape"
)

// Labels is the scratch target buffer shared by every backprop call within
// a trainer. Each call resizes and refills it for the current batch and
// target value, so one allocation serves the whole training run. The update
// protocol is strictly sequential; anything driving updates from several
// goroutines needs a Labels per goroutine.
type Labels struct {
	buf []float32
}

// fill resizes the buffer to n elements of value y and returns it as a
// constant leaf.
func (l *Labels) fill(n int, y float32) *tape.Node {
	if cap(l.buf) < n {
		l.buf = make([]float32, n)
	}
	l.buf = l.buf[:n]
	for i := range l.buf {
		l.buf[i] = y
	}
	return tape.FromSlice(l.buf, n)
}

// Values exposes the buffer's current contents.
func (l *Labels) Values() []float32 { return l.buf }
