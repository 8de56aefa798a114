package nets

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"

	"github.com/gorgonia/hgan/tape"
)

const leakySlope = 0.2

// ImageDiscriminator scores single frames: flatten, a leaky-rectified
// hidden layer, a sigmoid score per sample.
type ImageDiscriminator struct {
	conf   Config
	l1, l2 linear
}

func NewImageDiscriminator(conf Config, seed int64) *ImageDiscriminator {
	g := rng.NewGaussianGenerator(seed)
	return &ImageDiscriminator{
		conf: conf,
		l1:   newLinear(g, conf.frameSize(), conf.Hidden),
		l2:   newLinear(g, conf.Hidden, 1),
	}
}

// Score returns one score in (0, 1) per sample. The input must be rank 4,
// [B, C, H, W].
func (d *ImageDiscriminator) Score(x *tape.Node) (*tape.Node, error) {
	if x.Dims() != 4 {
		return nil, errors.Errorf("image discriminator: want rank 4 input [B,C,H,W], got shape %v", x.Shape())
	}
	s := x.Shape()
	if s[1]*s[2]*s[3] != d.conf.frameSize() {
		return nil, errors.Errorf("image discriminator: frame shape %v does not match config %dx%dx%d",
			s, d.conf.Channels, d.conf.Height, d.conf.Width)
	}
	return score(&d.l1, &d.l2, x, s[0], d.conf.frameSize())
}

func (d *ImageDiscriminator) Params() []*tape.Node {
	return append(d.l1.params(), d.l2.params()...)
}

func (d *ImageDiscriminator) ZeroGrad() { zeroGrads(d.Params()) }

// VideoDiscriminator scores whole clips. Same stack as the image
// discriminator over rank 5 input, [B, C, T, H, W].
type VideoDiscriminator struct {
	conf   Config
	l1, l2 linear
}

func NewVideoDiscriminator(conf Config, seed int64) *VideoDiscriminator {
	g := rng.NewGaussianGenerator(seed)
	return &VideoDiscriminator{
		conf: conf,
		l1:   newLinear(g, conf.videoSize(), conf.Hidden),
		l2:   newLinear(g, conf.Hidden, 1),
	}
}

func (d *VideoDiscriminator) Score(x *tape.Node) (*tape.Node, error) {
	if x.Dims() != 5 {
		return nil, errors.Errorf("video discriminator: want rank 5 input [B,C,T,H,W], got shape %v", x.Shape())
	}
	s := x.Shape()
	if s[1]*s[2]*s[3]*s[4] != d.conf.videoSize() {
		return nil, errors.Errorf("video discriminator: video shape %v does not match config %dx%dx%dx%d",
			s, d.conf.Channels, d.conf.Frames, d.conf.Height, d.conf.Width)
	}
	return score(&d.l1, &d.l2, x, s[0], d.conf.videoSize())
}

func (d *VideoDiscriminator) Params() []*tape.Node {
	return append(d.l1.params(), d.l2.params()...)
}

func (d *VideoDiscriminator) ZeroGrad() { zeroGrads(d.Params()) }

func score(l1, l2 *linear, x *tape.Node, batch, flat int) (*tape.Node, error) {
	var m maebe
	h := m.do(func() (*tape.Node, error) { return tape.Reshape(x, batch, flat) })
	h = l1.apply(&m, h)
	h = m.do(func() (*tape.Node, error) { return tape.LeakyReLU(h, leakySlope) })
	o := l2.apply(&m, h)
	o = m.do(func() (*tape.Node, error) { return tape.Reshape(o, batch) })
	o = m.do(func() (*tape.Node, error) { return tape.Sigmoid(o) })
	return o, m.err
}
