package hgan

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	conf := tinyConf(HNNPhaseSpace)
	conf.BatchSize = 0
	_, err := New(conf)
	assert.Error(t, err)

	conf = tinyConf(HNNPhaseSpace)
	conf.Nets.QSize = 2
	_, err = New(conf)
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	assert := assert.New(t)
	filename := filepath.Join(t.TempDir(), "hgan.ckpt")

	tr := tinyTrainer(t, HNNPhaseSpace)
	require.NoError(t, tr.Save(filename))

	conf := tinyConf(HNNPhaseSpace)
	conf.Seed = 12345
	other, err := New(conf)
	require.NoError(t, err)

	// freshly built with a different seed, so the weights differ
	diverged := false
	for i, params := range tr.components() {
		if changed(snapshot(params), other.components()[i]) {
			diverged = true
		}
	}
	require.True(t, diverged)

	require.NoError(t, other.Load(filename))
	for i, params := range tr.components() {
		for j, p := range params {
			assert.Equal(p.Data(), other.components()[i][j].Data(), "component %d param %d", i, j)
		}
	}
}

func TestLoadRejectsMismatchedShapes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "hgan.ckpt")

	tr := tinyTrainer(t, HNNPhaseSpace)
	require.NoError(t, tr.Save(filename))

	conf := tinyConf(HNNPhaseSpace)
	conf.Nets.Hidden = 4
	other, err := New(conf)
	require.NoError(t, err)
	assert.Error(t, other.Load(filename))
}

func TestLearn(t *testing.T) {
	conf := tinyConf(GRU)
	conf.R1Gamma = 0
	tr, err := New(conf)
	require.NoError(t, err)

	src := NewSyntheticSource(conf.Nets, 21)
	before := snapshot(tr.gen.Params())
	require.NoError(t, tr.Learn(src, 2))
	assert.True(t, changed(before, tr.gen.Params()))
}
