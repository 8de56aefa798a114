package hgan

import (
	"encoding/gob"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/nets"
	"github.com/gorgonia/hgan/tape"
)

// Trainer is the top level structure and the entry point of the API. It
// owns the four trainable components, their four optimizers, the shared
// label buffer and the criterion, and drives the update protocol.
type Trainer struct {
	conf Config

	disI Discriminator
	disV Discriminator
	gen  Generator
	dyn  Dynamics

	optDi, optDv *Optim
	optG, optRNN *Optim

	label     *Labels
	criterion Criterion
	sampler   *Sampler
}

// New builds a trainer with freshly initialized components.
func New(conf Config) (*Trainer, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid config %+v", conf)
	}

	disI := nets.NewImageDiscriminator(conf.Nets, conf.Seed)
	disV := nets.NewVideoDiscriminator(conf.Nets, conf.Seed+1)
	gen := nets.NewFrameDecoder(conf.Nets, conf.Seed+2)

	var dyn Dynamics
	switch conf.RNNType {
	case GRU:
		dyn = nets.NewGRUDynamics(conf.Nets, conf.Seed+3)
	case HNNPhaseSpace:
		var err error
		if dyn, err = nets.NewPhaseSpaceDynamics(conf.Nets, conf.Seed+3); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown rnn type %v", conf.RNNType)
	}

	t := &Trainer{
		conf:      conf,
		disI:      disI,
		disV:      disV,
		gen:       gen,
		dyn:       dyn,
		optDi:     BindOptim(tape.NewAdamSolver(tape.WithLearnRate(conf.LearnRate)), disI.Params()),
		optDv:     BindOptim(tape.NewAdamSolver(tape.WithLearnRate(conf.LearnRate)), disV.Params()),
		optG:      BindOptim(tape.NewAdamSolver(tape.WithLearnRate(conf.LearnRate)), gen.Params()),
		optRNN:    BindOptim(tape.NewAdamSolver(tape.WithLearnRate(conf.LearnRate)), dyn.Params()),
		label:     &Labels{},
		criterion: BCE{},
	}
	t.sampler = NewSampler(conf, gen, dyn, conf.Seed+4)
	return t, nil
}

// Sample draws a fake batch from the trainer's generator side.
func (t *Trainer) Sample(batch int) (*Batch, error) { return t.sampler.Sample(batch) }

// Step runs one full training iteration on the given real batch.
func (t *Trainer) Step(real *Batch) (map[string]float32, map[string]float32, error) {
	fake, err := t.sampler.Sample(t.conf.BatchSize)
	if err != nil {
		return nil, nil, err
	}
	return t.UpdateAll(real, fake)
}

// Learn trains for iters iterations against the data source.
func (t *Trainer) Learn(src DataSource, iters int) error {
	for i := 0; i < iters; i++ {
		real, err := src.Next(t.conf.BatchSize)
		if err != nil {
			return errors.Wrapf(err, "iteration %d", i)
		}
		errs, means, err := t.Step(real)
		if err != nil {
			return errors.Wrapf(err, "iteration %d", i)
		}
		log.Printf("iter %d: Dv %.4f (real %.3f/fake %.3f) Di %.4f (real %.3f/fake %.3f) Gv %.4f Gi %.4f",
			i, errs["Dv"], means["Dv_real"], means["Dv_fake"],
			errs["Di"], means["Di_real"], means["Di_fake"],
			errs["Gv"], errs["Gi"])
	}
	return nil
}

// components returns the trainable components in a fixed order for
// checkpointing.
func (t *Trainer) components() [][]*tape.Node {
	return [][]*tape.Node{t.disI.Params(), t.disV.Params(), t.gen.Params(), t.dyn.Params()}
}

// Save checkpoints all component weights into filename. Checkpoints are
// only safe between iterations; a failed iteration may have stepped some
// optimizers and not others.
func (t *Trainer) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0544)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	for _, params := range t.components() {
		for _, p := range params {
			if err := enc.Encode(p.Data()); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	return nil
}

// Load restores component weights saved by Save into this trainer. The
// trainer must have been built with the same configuration.
func (t *Trainer) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	for _, params := range t.components() {
		for _, p := range params {
			var w []float32
			if err := dec.Decode(&w); err != nil {
				return errors.WithStack(err)
			}
			dst := p.Data()
			if len(w) != len(dst) {
				return errors.Errorf("checkpoint weight count %d does not match parameter size %d", len(w), len(dst))
			}
			copy(dst, w)
		}
	}
	return nil
}
