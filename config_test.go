package hgan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRNNType(t *testing.T) {
	assert := assert.New(t)
	tests := []struct {
		in   string
		want RNNType
		ok   bool
	}{
		{"gru", GRU, true},
		{"hnn_phase_space", HNNPhaseSpace, true},
		{"", 0, false},
		{"hnn", 0, false},
		{"GRU", 0, false},
	}
	for _, tc := range tests {
		got, err := ParseRNNType(tc.in)
		if !tc.ok {
			assert.Error(err, "input %q", tc.in)
			continue
		}
		if assert.NoError(err, "input %q", tc.in) {
			assert.Equal(tc.want, got)
		}
	}
}

func TestRNNTypeString(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("gru", GRU.String())
	assert.Equal("hnn_phase_space", HNNPhaseSpace.String())
	assert.Equal("unknown", RNNType(99).String())

	// parse and String round-trip
	for _, r := range []RNNType{GRU, HNNPhaseSpace} {
		got, err := ParseRNNType(r.String())
		assert.NoError(err)
		assert.Equal(r, got)
	}
}

func TestConfigIsValid(t *testing.T) {
	assert := assert.New(t)
	assert.True(DefaultConf().IsValid())

	c := DefaultConf()
	c.BatchSize = 0
	assert.False(c.IsValid())

	c = DefaultConf()
	c.R1Gamma = -1
	assert.False(c.IsValid())

	c = DefaultConf()
	c.RealLabel = 0
	assert.False(c.IsValid())

	c = DefaultConf()
	c.RealLabel = 1.5
	assert.False(c.IsValid())

	c = DefaultConf()
	c.LearnRate = 0
	assert.False(c.IsValid())

	// the phase-space variant needs an even latent split
	c = DefaultConf()
	c.RNNType = HNNPhaseSpace
	c.Nets.QSize = c.Nets.LatentSize/2 - 1
	assert.False(c.IsValid())

	// the recurrent variant does not
	c.RNNType = GRU
	assert.True(c.IsValid())
}
