// Package hgan trains a video GAN whose latent space is driven by a learned
// dynamical model. The interesting part is the adversarial update protocol:
// per iteration, the video discriminator, the image discriminator and then
// the generator side (frame decoder + dynamics model) each run their own
// ordered sequence of backward passes over partially shared graphs, with an
// optional R1 gradient penalty that needs a second-order pass.
package hgan

import (
	"github.com/gorgonia/hgan/tape"
)

// Discriminator scores a batch of inputs, one score in (0, 1) per sample.
type Discriminator interface {
	Score(x *tape.Node) (*tape.Node, error)
	Params() []*tape.Node
	ZeroGrad()
}

// Generator decodes latent states into frames.
type Generator interface {
	Decode(z *tape.Node) (*tape.Node, error)
	Params() []*tape.Node
	ZeroGrad()
}

// Dynamics rolls the latent state forward. The second return is the
// derivative trajectory [B, T, D], or nil for variants that do not track
// one.
type Dynamics interface {
	Rollout(z0 *tape.Node, steps int) ([]*tape.Node, *tape.Node, error)
	Params() []*tape.Node
	ZeroGrad()
}

// Criterion is a differentiable classification loss over discriminator
// scores.
type Criterion interface {
	Loss(output, target *tape.Node) (*tape.Node, error)
}

// BCE is clamped binary cross-entropy, the usual GAN criterion.
type BCE struct{}

func (BCE) Loss(output, target *tape.Node) (*tape.Node, error) {
	return tape.BCE(output, target)
}

// Batch is one iteration's worth of data. Real batches come from a
// DataSource, fake ones from the Sampler. DLatent is nil except for the
// phase-space variant.
type Batch struct {
	Videos  *tape.Node // [B, C, T, H, W]
	Img     *tape.Node // [B, C, H, W]
	DLatent *tape.Node // [B, T, D]
}

// DataSource supplies real batches.
type DataSource interface {
	Next(batch int) (*Batch, error)
}

// Optim binds a solver to exactly one component's parameters, so no update
// step can apply gradients to the wrong component.
type Optim struct {
	solver tape.Solver
	params []*tape.Node
}

// BindOptim pairs a solver with a parameter set.
func BindOptim(solver tape.Solver, params []*tape.Node) *Optim {
	return &Optim{solver: solver, params: params}
}

// Step applies the currently accumulated gradients.
func (o *Optim) Step() error { return o.solver.Step(o.params) }
