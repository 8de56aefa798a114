package nets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gorgonia/hgan/tape"
)

func testConf() Config {
	return Config{
		Channels:   1,
		Height:     4,
		Width:      4,
		Frames:     3,
		LatentSize: 6,
		QSize:      3,
		Hidden:     8,
		DT:         0.1,
	}
}

func TestConfigIsValid(t *testing.T) {
	assert := assert.New(t)
	assert.True(DefaultConf().IsValid())
	assert.True(DefaultConf().PhaseSpaceValid())
	assert.True(testConf().IsValid())

	c := testConf()
	c.QSize = c.LatentSize
	assert.False(c.IsValid())

	c = testConf()
	c.Frames = 0
	assert.False(c.IsValid())

	c = testConf()
	c.QSize = 2
	assert.False(c.PhaseSpaceValid(), "latent must split into equal halves")
}

func TestImageDiscriminatorScore(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	d := NewImageDiscriminator(conf, 42)

	x := tape.New(3, conf.Channels, conf.Height, conf.Width)
	out, err := d.Score(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]int{3}, []int(out.Shape()))
	for _, v := range out.Data() {
		assert.True(v > 0 && v < 1, "score %v out of range", v)
	}
}

func TestImageDiscriminatorRejectsRank(t *testing.T) {
	conf := testConf()
	d := NewImageDiscriminator(conf, 42)
	_, err := d.Score(tape.New(3, conf.frameSize()))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rank 4")
}

func TestVideoDiscriminatorScore(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	d := NewVideoDiscriminator(conf, 42)

	x := tape.New(2, conf.Channels, conf.Frames, conf.Height, conf.Width)
	out, err := d.Score(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]int{2}, []int(out.Shape()))

	_, err = d.Score(tape.New(2, conf.Channels, conf.Height, conf.Width))
	assert.Error(err)
	assert.Contains(err.Error(), "rank 5")
}

func TestFrameDecoder(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	g := NewFrameDecoder(conf, 42)

	z := tape.New(2, conf.LatentSize)
	f, err := g.Decode(z)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal([]int{2, conf.Channels, conf.Height, conf.Width}, []int(f.Shape()))
	for _, v := range f.Data() {
		assert.True(v >= -1 && v <= 1, "pixel %v out of range", v)
	}

	_, err = g.Decode(tape.New(2, conf.LatentSize+1))
	assert.Error(err)
}

func TestGRURollout(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	r := NewGRUDynamics(conf, 42)

	z0 := tape.New(2, conf.LatentSize)
	traj, dlatent, err := r.Rollout(z0, 4)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Nil(dlatent, "gru variant has no derivative trajectory")
	assert.Len(traj, 4)
	assert.Same(z0, traj[0])
	for _, s := range traj {
		assert.Equal([]int{2, conf.LatentSize}, []int(s.Shape()))
	}
}

func TestGRURolloutTrains(t *testing.T) {
	conf := testConf()
	r := NewGRUDynamics(conf, 42)

	z0 := tape.New(2, conf.LatentSize)
	traj, _, err := r.Rollout(z0, 3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := tape.Sum(traj[len(traj)-1])
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	var got int
	for _, p := range r.Params() {
		if p.Grad() != nil {
			got++
		}
	}
	assert.NotZero(t, got, "rollout must be differentiable wrt cell weights")
}

func TestPhaseSpaceRollout(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	conf.LatentSize = 6
	conf.QSize = 3

	p, err := NewPhaseSpaceDynamics(conf, 42)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	z0 := tape.New(2, conf.LatentSize)
	traj, dlatent, err := p.Rollout(z0, 3)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Len(traj, 3)
	assert.NotNil(dlatent)
	assert.Equal([]int{2, 3, conf.LatentSize}, []int(dlatent.Shape()))
}

func TestPhaseSpaceRejectsUnevenSplit(t *testing.T) {
	conf := testConf()
	conf.LatentSize = 6
	conf.QSize = 2
	_, err := NewPhaseSpaceDynamics(conf, 42)
	assert.Error(t, err)
}

// The derivative trajectory must carry gradients back into the Hamiltonian
// weights: this is what the latent regularization and the adversarial
// updates rely on.
func TestPhaseSpaceDerivativesTrain(t *testing.T) {
	conf := testConf()
	p, err := NewPhaseSpaceDynamics(conf, 42)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	z0 := tape.New(2, conf.LatentSize)
	_, dlatent, err := p.Rollout(z0, 2)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	sq, err := tape.Square(dlatent)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := tape.Sum(sq)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	var got int
	for _, w := range p.Params() {
		if w.Grad() != nil {
			got++
		}
	}
	assert.NotZero(t, got, "derivatives must be differentiable wrt H weights")
}

func TestParamsAndZeroGrad(t *testing.T) {
	assert := assert.New(t)
	conf := testConf()
	d := NewImageDiscriminator(conf, 42)
	assert.Len(d.Params(), 4)

	x := tape.New(1, conf.Channels, conf.Height, conf.Width)
	out, err := d.Score(x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s, err := tape.Sum(out)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := s.Backward(false); err != nil {
		t.Fatalf("%+v", err)
	}
	assert.NotNil(d.Params()[0].Grad())

	d.ZeroGrad()
	for _, p := range d.Params() {
		assert.Nil(p.Grad())
	}
}
