package nets

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/tape"
)

// generic monad... may be useful
type maebe struct {
	err error
}

func (m *maebe) do(f func() (*tape.Node, error)) (retVal *tape.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// linear is a dense layer: x·W + b.
type linear struct {
	w, b *tape.Node
}

func newLinear(g *rng.GaussianGenerator, in, out int) linear {
	std := 1 / math.Sqrt(float64(in))
	wBacking := make([]float32, in*out)
	for i := range wBacking {
		wBacking[i] = float32(g.Gaussian(0, std))
	}
	w := tape.FromSlice(wBacking, in, out)
	w.SetRequiresGrad(true)
	b := tape.New(out)
	b.SetRequiresGrad(true)
	return linear{w: w, b: b}
}

func (l linear) apply(m *maebe, x *tape.Node) *tape.Node {
	xw := m.do(func() (*tape.Node, error) { return tape.MatMul(x, l.w) })
	return m.do(func() (*tape.Node, error) { return tape.AddBias(xw, l.b) })
}

func (l linear) params() []*tape.Node { return []*tape.Node{l.w, l.b} }

func zeroGrads(params []*tape.Node) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
