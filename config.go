package hgan

import (
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/nets"
)

// RNNType selects the latent dynamics variant. It decides gradient-tracking
// defaults, graph retention in the generator update, and whether the latent
// regularization term exists at all, so the choice is made once here rather
// than scattered through the update steps.
type RNNType uint8

const (
	// GRU is the plain gated-recurrent variant. No derivative trajectory,
	// no gradient tracking on real videos.
	GRU RNNType = iota
	// HNNPhaseSpace is the Hamiltonian variant. It exposes the latent
	// derivative trajectory and enables the video R1 penalty.
	HNNPhaseSpace
)

func (r RNNType) String() string {
	switch r {
	case GRU:
		return "gru"
	case HNNPhaseSpace:
		return "hnn_phase_space"
	}
	return "unknown"
}

// variant collects every update-step behavior that depends on the dynamics
// model, so the steps read it from one place instead of branching on the
// type themselves.
type variant struct {
	trackRealVideos bool      // real clips carry gradients, enabling their penalty
	imgRetention    retention // the latent penalty reuses the generator graph
	latentPenalty   bool
}

func (r RNNType) variant() variant {
	if r == HNNPhaseSpace {
		return variant{trackRealVideos: true, imgRetention: morePasses, latentPenalty: true}
	}
	return variant{imgRetention: finalPass}
}

// ParseRNNType parses the configuration surface's dynamics-model name.
func ParseRNNType(s string) (RNNType, error) {
	switch s {
	case "gru":
		return GRU, nil
	case "hnn_phase_space":
		return HNNPhaseSpace, nil
	}
	return 0, errors.Errorf("unknown rnn type %q (want \"gru\" or \"hnn_phase_space\")", s)
}

// Config configures the trainer.
type Config struct {
	Nets    nets.Config
	RNNType RNNType

	BatchSize int

	R1Gamma         float32 // gradient penalty weight; 0 disables
	CyclicCoordLoss float32 // latent drift regularization weight
	RealLabel       float32 // smoothed "real" target; fake is always 0

	LearnRate float64
	Seed      int64
}

// DefaultConf is a toy-sized but trainable configuration.
func DefaultConf() Config {
	return Config{
		Nets:            nets.DefaultConf(),
		RNNType:         HNNPhaseSpace,
		BatchSize:       16,
		R1Gamma:         10,
		CyclicCoordLoss: 0.01,
		RealLabel:       0.9,
		LearnRate:       2e-4,
		Seed:            1337,
	}
}

func (c Config) IsValid() bool {
	netsOK := c.Nets.IsValid()
	if c.RNNType == HNNPhaseSpace {
		netsOK = c.Nets.PhaseSpaceValid()
	}
	return netsOK &&
		c.BatchSize >= 1 &&
		c.R1Gamma >= 0 &&
		c.CyclicCoordLoss >= 0 &&
		c.RealLabel > 0 && c.RealLabel <= 1 &&
		c.LearnRate > 0
}
