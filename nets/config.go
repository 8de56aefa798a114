// Package nets provides the trainable components of the video GAN: the two
// discriminators, the frame decoder and the latent dynamics models. They are
// all small dense stacks over the tape engine; the update protocol treats
// them as opaque differentiable functions.
package nets

// Config describes the shapes shared by all components.
type Config struct {
	Channels int // frame channels
	Height   int // frame height
	Width    int // frame width
	Frames   int // frames per video

	LatentSize int // dynamics state width
	QSize      int // cyclic ("position") coordinates of the state
	Hidden     int // hidden layer width

	DT float64 // phase-space integration step
}

// DefaultConf is a toy-sized configuration.
func DefaultConf() Config {
	return Config{
		Channels:   1,
		Height:     8,
		Width:      8,
		Frames:     6,
		LatentSize: 8,
		QSize:      4,
		Hidden:     16,
		DT:         0.05,
	}
}

func (c Config) IsValid() bool {
	return c.Channels >= 1 &&
		c.Height >= 1 &&
		c.Width >= 1 &&
		c.Frames >= 1 &&
		c.LatentSize >= 2 &&
		c.QSize >= 1 &&
		c.QSize < c.LatentSize &&
		c.Hidden >= 1 &&
		c.DT > 0
}

// PhaseSpaceValid additionally requires the latent state to split into
// equal-sized position and momentum halves.
func (c Config) PhaseSpaceValid() bool {
	return c.IsValid() && c.LatentSize == 2*c.QSize
}

func (c Config) frameSize() int { return c.Channels * c.Height * c.Width }
func (c Config) videoSize() int { return c.Channels * c.Frames * c.Height * c.Width }
