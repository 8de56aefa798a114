package nets

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/tape"
)

// GRUDynamics evolves the latent state with an autonomous gated-recurrent
// cell. It exposes no state derivatives.
type GRUDynamics struct {
	conf       Config
	wr, wu, wc linear
}

func NewGRUDynamics(conf Config, seed int64) *GRUDynamics {
	g := rng.NewGaussianGenerator(seed)
	d := conf.LatentSize
	return &GRUDynamics{
		conf: conf,
		wr:   newLinear(g, d, d),
		wu:   newLinear(g, d, d),
		wc:   newLinear(g, d, d),
	}
}

// Rollout returns the latent trajectory [z0, cell(z0), ...] of the given
// length. The derivative trajectory is always nil for this variant.
func (r *GRUDynamics) Rollout(z0 *tape.Node, steps int) ([]*tape.Node, *tape.Node, error) {
	if err := checkState(z0, r.conf.LatentSize, steps); err != nil {
		return nil, nil, errors.Wrap(err, "gru dynamics")
	}
	traj := make([]*tape.Node, steps)
	traj[0] = z0
	s := z0
	for t := 1; t < steps; t++ {
		var m maebe
		state := s
		rpre := r.wr.apply(&m, state)
		reset := m.do(func() (*tape.Node, error) { return tape.Sigmoid(rpre) })
		upre := r.wu.apply(&m, state)
		update := m.do(func() (*tape.Node, error) { return tape.Sigmoid(upre) })
		gated := m.do(func() (*tape.Node, error) { return tape.Mul(reset, state) })
		cpre := r.wc.apply(&m, gated)
		cand := m.do(func() (*tape.Node, error) { return tape.Tanh(cpre) })

		keep := m.do(func() (*tape.Node, error) { return tape.Affine(update, -1, 1) })
		kept := m.do(func() (*tape.Node, error) { return tape.Mul(keep, state) })
		mixed := m.do(func() (*tape.Node, error) { return tape.Mul(update, cand) })
		next := m.do(func() (*tape.Node, error) { return tape.Add(kept, mixed) })
		if m.err != nil {
			return nil, nil, errors.Wrapf(m.err, "gru dynamics: step %d", t)
		}
		traj[t] = next
		s = next
	}
	return traj, nil, nil
}

func (r *GRUDynamics) Params() []*tape.Node {
	ps := append(r.wr.params(), r.wu.params()...)
	return append(ps, r.wc.params()...)
}

func (r *GRUDynamics) ZeroGrad() { zeroGrads(r.Params()) }

// PhaseSpaceDynamics evolves the latent state along the symplectic gradient
// of a learned Hamiltonian. The state is [q, p] with q the first QSize
// channels; each step computes dq/dt = ∂H/∂p and dp/dt = -∂H/∂q through the
// tape's create-graph gradient, so the rollout (and the derivative
// trajectory it reports) stays differentiable with respect to the
// Hamiltonian's weights.
type PhaseSpaceDynamics struct {
	conf   Config
	l1, l2 linear
	dt     float32
}

func NewPhaseSpaceDynamics(conf Config, seed int64) (*PhaseSpaceDynamics, error) {
	if !conf.PhaseSpaceValid() {
		return nil, errors.Errorf("phase-space dynamics: latent size %d must be twice q size %d", conf.LatentSize, conf.QSize)
	}
	g := rng.NewGaussianGenerator(seed)
	return &PhaseSpaceDynamics{
		conf: conf,
		l1:   newLinear(g, conf.LatentSize, conf.Hidden),
		l2:   newLinear(g, conf.Hidden, 1),
		dt:   float32(conf.DT),
	}, nil
}

// energy evaluates H over a batch of states, reduced to a scalar so one
// backward pass yields all per-sample state gradients.
func (p *PhaseSpaceDynamics) energy(s *tape.Node) (*tape.Node, error) {
	var m maebe
	h := p.l1.apply(&m, s)
	h = m.do(func() (*tape.Node, error) { return tape.Tanh(h) })
	e := p.l2.apply(&m, h)
	e = m.do(func() (*tape.Node, error) { return tape.Sum(e) })
	return e, m.err
}

// Rollout returns the state trajectory and the derivative trajectory
// [B, T, D], whose first QSize channels are dq/dt.
func (p *PhaseSpaceDynamics) Rollout(z0 *tape.Node, steps int) ([]*tape.Node, *tape.Node, error) {
	if err := checkState(z0, p.conf.LatentSize, steps); err != nil {
		return nil, nil, errors.Wrap(err, "phase-space dynamics")
	}
	// the state must be differentiable for the symplectic gradient to exist
	if !z0.RequiresGrad() {
		if err := z0.SetRequiresGrad(true); err != nil {
			return nil, nil, errors.Wrap(err, "phase-space dynamics")
		}
	}
	q := p.conf.QSize
	d := p.conf.LatentSize

	traj := make([]*tape.Node, steps)
	derivs := make([]*tape.Node, steps)
	s := z0
	for t := 0; t < steps; t++ {
		e, err := p.energy(s)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "phase-space dynamics: energy at step %d", t)
		}
		gs, err := tape.Grad(e, s)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "phase-space dynamics: state gradient at step %d", t)
		}

		var m maebe
		dqdt := m.do(func() (*tape.Node, error) { return tape.NarrowLast(gs, q, d) })
		dHdq := m.do(func() (*tape.Node, error) { return tape.NarrowLast(gs, 0, q) })
		dpdt := m.do(func() (*tape.Node, error) { return tape.Neg(dHdq) })
		deriv := m.do(func() (*tape.Node, error) { return tape.ConcatLast(dqdt, dpdt) })

		step := m.do(func() (*tape.Node, error) { return tape.Scale(deriv, p.dt) })
		next := m.do(func() (*tape.Node, error) { return tape.Add(s, step) })
		if m.err != nil {
			return nil, nil, errors.Wrapf(m.err, "phase-space dynamics: step %d", t)
		}

		traj[t] = s
		derivs[t] = deriv
		s = next
	}
	dlatent, err := tape.StackSeq(derivs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "phase-space dynamics")
	}
	return traj, dlatent, nil
}

func (p *PhaseSpaceDynamics) Params() []*tape.Node {
	return append(p.l1.params(), p.l2.params()...)
}

func (p *PhaseSpaceDynamics) ZeroGrad() { zeroGrads(p.Params()) }

func checkState(z0 *tape.Node, width, steps int) error {
	if steps < 1 {
		return errors.Errorf("rollout needs at least 1 step, got %d", steps)
	}
	if z0.Dims() != 2 || z0.Shape()[1] != width {
		return errors.Errorf("want state shape [B,%d], got %v", width, z0.Shape())
	}
	return nil
}
