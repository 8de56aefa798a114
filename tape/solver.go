package tape

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// Solver applies accumulated gradients to parameters. Step does not clear
// gradients; that is the caller's job, so several backward passes can
// accumulate into one step.
type Solver interface {
	Step(params []*Node) error
}

type solverSettings struct {
	eta          float64
	beta1, beta2 float64
	eps          float64
}

// SolverOpt configures a solver.
type SolverOpt func(*solverSettings)

// WithLearnRate sets the solver's learning rate.
func WithLearnRate(eta float64) SolverOpt { return func(s *solverSettings) { s.eta = eta } }

// WithBetas sets Adam's moment decay rates.
func WithBetas(beta1, beta2 float64) SolverOpt {
	return func(s *solverSettings) { s.beta1, s.beta2 = beta1, beta2 }
}

// WithEps sets Adam's denominator fuzz factor.
func WithEps(eps float64) SolverOpt { return func(s *solverSettings) { s.eps = eps } }

// VanillaSolver is plain SGD.
type VanillaSolver struct {
	eta float32
}

// NewVanillaSolver returns SGD with a default learn rate of 0.01.
func NewVanillaSolver(opts ...SolverOpt) *VanillaSolver {
	s := solverSettings{eta: 0.01}
	for _, o := range opts {
		o(&s)
	}
	return &VanillaSolver{eta: float32(s.eta)}
}

func (v *VanillaSolver) Step(params []*Node) error {
	for i, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		w := p.Data()
		gd := g.Data()
		if len(w) != len(gd) {
			return errors.Errorf("vanilla solver: param %d has %d weights but %d gradients", i, len(w), len(gd))
		}
		step := append([]float32(nil), gd...)
		vecf32.Scale(step, -v.eta)
		vecf32.Add(w, step)
	}
	return nil
}

type adamState struct {
	m, v []float32
	t    int
}

// AdamSolver is the Adam optimizer. Moment state is keyed per parameter
// node, so one solver must stay bound to one parameter set.
type AdamSolver struct {
	eta          float32
	beta1, beta2 float32
	eps          float32

	states map[*Node]*adamState
}

// NewAdamSolver returns Adam with the usual defaults (lr 1e-3, betas
// 0.9/0.999, eps 1e-8).
func NewAdamSolver(opts ...SolverOpt) *AdamSolver {
	s := solverSettings{eta: 1e-3, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, o := range opts {
		o(&s)
	}
	return &AdamSolver{
		eta:    float32(s.eta),
		beta1:  float32(s.beta1),
		beta2:  float32(s.beta2),
		eps:    float32(s.eps),
		states: make(map[*Node]*adamState),
	}
}

func (a *AdamSolver) Step(params []*Node) error {
	for i, p := range params {
		g := p.Grad()
		if g == nil {
			continue
		}
		w := p.Data()
		gd := g.Data()
		if len(w) != len(gd) {
			return errors.Errorf("adam solver: param %d has %d weights but %d gradients", i, len(w), len(gd))
		}
		st := a.states[p]
		if st == nil {
			st = &adamState{m: make([]float32, len(w)), v: make([]float32, len(w))}
			a.states[p] = st
		}
		st.t++
		c1 := 1 - math32.Pow(a.beta1, float32(st.t))
		c2 := 1 - math32.Pow(a.beta2, float32(st.t))
		for j, gv := range gd {
			st.m[j] = a.beta1*st.m[j] + (1-a.beta1)*gv
			st.v[j] = a.beta2*st.v[j] + (1-a.beta2)*gv*gv
			mhat := st.m[j] / c1
			vhat := st.v[j] / c2
			w[j] -= a.eta * mhat / (math32.Sqrt(vhat) + a.eps)
		}
	}
	return nil
}
