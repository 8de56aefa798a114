package hgan

import (
	"math/rand"

	"github.com/chewxy/math32"
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/nets"
	"github.com/gorgonia/hgan/tape"
)

// Sampler draws the fake batch each iteration: a Gaussian initial latent,
// a dynamics rollout, decoded frames stacked into a clip, and one of the
// frames doubling as the fake image. Everything stays connected to the
// generator graph; detaching is the discriminator updates' business.
type Sampler struct {
	conf Config
	gen  Generator
	dyn  Dynamics

	gauss *rng.GaussianGenerator
	r     *rand.Rand
}

func NewSampler(conf Config, gen Generator, dyn Dynamics, seed int64) *Sampler {
	return &Sampler{
		conf:  conf,
		gen:   gen,
		dyn:   dyn,
		gauss: rng.NewGaussianGenerator(seed),
		r:     rand.New(rand.NewSource(seed)),
	}
}

// Sample produces a fake batch of the given size.
func (s *Sampler) Sample(batch int) (*Batch, error) {
	if batch < 1 {
		return nil, errors.Errorf("sampler: batch size %d", batch)
	}
	width := s.conf.Nets.LatentSize
	backing := make([]float32, batch*width)
	for i := range backing {
		backing[i] = float32(s.gauss.Gaussian(0, 1))
	}
	z0 := tape.FromSlice(backing, batch, width)

	traj, dlatent, err := s.dyn.Rollout(z0, s.conf.Nets.Frames)
	if err != nil {
		return nil, errors.Wrap(err, "sampler: rollout")
	}

	frames := make([]*tape.Node, len(traj))
	for i, state := range traj {
		if frames[i], err = s.gen.Decode(state); err != nil {
			return nil, errors.Wrapf(err, "sampler: frame %d", i)
		}
	}
	videos, err := tape.StackFrames(frames)
	if err != nil {
		return nil, errors.Wrap(err, "sampler")
	}

	img := frames[s.r.Intn(len(frames))]
	return &Batch{Videos: videos, Img: img, DLatent: dlatent}, nil
}

// SyntheticSource produces deterministic drifting sine-pattern clips. It
// stands in for a real dataset in the example command and the tests.
type SyntheticSource struct {
	conf nets.Config
	r    *rand.Rand
}

func NewSyntheticSource(conf nets.Config, seed int64) *SyntheticSource {
	return &SyntheticSource{conf: conf, r: rand.New(rand.NewSource(seed))}
}

func (s *SyntheticSource) Next(batch int) (*Batch, error) {
	if batch < 1 {
		return nil, errors.Errorf("synthetic source: batch size %d", batch)
	}
	c := s.conf
	hw := c.Height * c.Width
	videos := make([]float32, batch*c.Channels*c.Frames*hw)
	for b := 0; b < batch; b++ {
		phase := float32(s.r.Float64()) * 2 * math32.Pi
		freq := 1 + float32(s.r.Float64())
		for ch := 0; ch < c.Channels; ch++ {
			for t := 0; t < c.Frames; t++ {
				base := ((b*c.Channels+ch)*c.Frames + t) * hw
				drift := phase + freq*float32(t)*0.3
				for y := 0; y < c.Height; y++ {
					for x := 0; x < c.Width; x++ {
						videos[base+y*c.Width+x] = math32.Sin(drift + 0.5*float32(x) + 0.3*float32(y))
					}
				}
			}
		}
	}

	// a random frame of each clip serves as the single-frame sample
	img := make([]float32, batch*c.Channels*hw)
	for b := 0; b < batch; b++ {
		t := s.r.Intn(c.Frames)
		for ch := 0; ch < c.Channels; ch++ {
			src := ((b*c.Channels+ch)*c.Frames + t) * hw
			dst := (b*c.Channels + ch) * hw
			copy(img[dst:dst+hw], videos[src:src+hw])
		}
	}

	return &Batch{
		Videos: tape.FromSlice(videos, batch, c.Channels, c.Frames, c.Height, c.Width),
		Img:    tape.FromSlice(img, batch, c.Channels, c.Height, c.Width),
	}, nil
}
