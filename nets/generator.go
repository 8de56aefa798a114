package nets

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/tape"
)

// FrameDecoder maps a latent state to a single frame in [-1, 1]. It is the
// image generator of the GAN; videos are its per-step frames stacked along
// the time axis.
type FrameDecoder struct {
	conf   Config
	l1, l2 linear
}

func NewFrameDecoder(conf Config, seed int64) *FrameDecoder {
	g := rng.NewGaussianGenerator(seed)
	return &FrameDecoder{
		conf: conf,
		l1:   newLinear(g, conf.LatentSize, conf.Hidden),
		l2:   newLinear(g, conf.Hidden, conf.frameSize()),
	}
}

// Decode turns latent states [B, Z] into frames [B, C, H, W].
func (d *FrameDecoder) Decode(z *tape.Node) (*tape.Node, error) {
	if z.Dims() != 2 {
		return nil, errors.Errorf("frame decoder: want rank 2 input [B,Z], got shape %v", z.Shape())
	}
	if z.Shape()[1] != d.conf.LatentSize {
		return nil, errors.Errorf("frame decoder: latent width %d does not match config %d", z.Shape()[1], d.conf.LatentSize)
	}
	batch := z.Shape()[0]

	var m maebe
	h := d.l1.apply(&m, z)
	h = m.do(func() (*tape.Node, error) { return tape.Tanh(h) })
	f := d.l2.apply(&m, h)
	f = m.do(func() (*tape.Node, error) { return tape.Tanh(f) })
	f = m.do(func() (*tape.Node, error) {
		return tape.Reshape(f, batch, d.conf.Channels, d.conf.Height, d.conf.Width)
	})
	return f, m.err
}

func (d *FrameDecoder) Params() []*tape.Node {
	return append(d.l1.params(), d.l2.params()...)
}

func (d *FrameDecoder) ZeroGrad() { zeroGrads(d.Params()) }
