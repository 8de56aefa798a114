package hgan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorgonia/hgan/tape"
)

func TestSamplerShapes(t *testing.T) {
	assert := assert.New(t)
	tr := tinyTrainer(t, HNNPhaseSpace)
	c := tr.conf.Nets

	fake, err := tr.Sample(3)
	require.NoError(t, err)

	assert.Equal([]int{3, c.Channels, c.Frames, c.Height, c.Width}, []int(fake.Videos.Shape()))
	assert.Equal([]int{3, c.Channels, c.Height, c.Width}, []int(fake.Img.Shape()))
	require.NotNil(t, fake.DLatent)
	assert.Equal([]int{3, c.Frames, c.LatentSize}, []int(fake.DLatent.Shape()))
}

func TestSamplerGRUHasNoDerivatives(t *testing.T) {
	tr := tinyTrainer(t, GRU)
	fake, err := tr.Sample(2)
	require.NoError(t, err)
	assert.Nil(t, fake.DLatent)
}

func TestSamplerRejectsBadBatch(t *testing.T) {
	tr := tinyTrainer(t, GRU)
	_, err := tr.Sample(0)
	assert.Error(t, err)
}

// The fake image must stay connected to the generator graph: the generator
// update backprops through it without resampling.
func TestSampledImageIsConnected(t *testing.T) {
	tr := tinyTrainer(t, GRU)
	fake, err := tr.Sample(2)
	require.NoError(t, err)
	require.True(t, fake.Img.RequiresGrad())

	s, err := tape.Sum(fake.Img)
	require.NoError(t, err)
	require.NoError(t, s.Backward(false))

	var got int
	for _, p := range tr.gen.Params() {
		if p.Grad() != nil {
			got++
		}
	}
	assert.NotZero(t, got)
}

func TestSyntheticSourceShapesAndRange(t *testing.T) {
	assert := assert.New(t)
	conf := tinyConf(GRU).Nets
	src := NewSyntheticSource(conf, 5)

	real, err := src.Next(4)
	require.NoError(t, err)
	assert.Equal([]int{4, conf.Channels, conf.Frames, conf.Height, conf.Width}, []int(real.Videos.Shape()))
	assert.Equal([]int{4, conf.Channels, conf.Height, conf.Width}, []int(real.Img.Shape()))
	assert.Nil(real.DLatent)
	for _, v := range real.Videos.Data() {
		assert.True(v >= -1 && v <= 1)
	}

	// the image is one of the clip's frames
	vd := real.Videos.Data()
	id := real.Img.Data()
	hw := conf.Height * conf.Width
	found := false
	for f := 0; f < conf.Frames; f++ {
		match := true
		for i := 0; i < hw; i++ {
			if id[i] != vd[f*hw+i] {
				match = false
				break
			}
		}
		if match {
			found = true
			break
		}
	}
	assert.True(found, "image of first sample is not any of its frames")

	_, err = src.Next(0)
	assert.Error(err)
}

func TestSyntheticSourceDeterminism(t *testing.T) {
	conf := tinyConf(GRU).Nets
	a, err := NewSyntheticSource(conf, 5).Next(2)
	require.NoError(t, err)
	b, err := NewSyntheticSource(conf, 5).Next(2)
	require.NoError(t, err)
	assert.Equal(t, a.Videos.Data(), b.Videos.Data())
	assert.Equal(t, a.Img.Data(), b.Img.Data())
}
