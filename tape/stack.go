package tape

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// StackFrames stacks T frames of shape [B, C, H, W] into a video of shape
// [B, C, T, H, W]. Its backward splits the incoming gradient back into
// per-frame gradients; the split is not differentiable a second time, which
// no caller needs (the R1 penalty differentiates discriminator outputs with
// respect to real inputs, which are leaves).
func StackFrames(frames []*Node) (*Node, error) {
	if len(frames) == 0 {
		return nil, errors.New("stackframes: no frames")
	}
	fs := frames[0].Shape()
	if fs.Dims() != 4 {
		return nil, errors.Errorf("stackframes: want [B,C,H,W] frames, got shape %v", fs)
	}
	for _, f := range frames[1:] {
		if !f.Shape().Eq(fs) {
			return nil, errors.Errorf("stackframes: frame shape %v does not match %v", f.Shape(), fs)
		}
	}
	b, c, h, w := fs[0], fs[1], fs[2], fs[3]
	t := len(frames)
	hw := h * w
	backing := make([]float32, b*c*t*hw)
	for ti, f := range frames {
		fd := f.Data()
		for bc := 0; bc < b*c; bc++ {
			copy(backing[(bc*t+ti)*hw:(bc*t+ti+1)*hw], fd[bc*hw:(bc+1)*hw])
		}
	}
	out := tensor.New(tensor.WithShape(b, c, t, h, w), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		gd := g.Data()
		grads := make([]*Node, t)
		for ti := range frames {
			fg := make([]float32, b*c*hw)
			for bc := 0; bc < b*c; bc++ {
				copy(fg[bc*hw:(bc+1)*hw], gd[(bc*t+ti)*hw:(bc*t+ti+1)*hw])
			}
			grads[ti] = FromSlice(fg, b, c, h, w)
		}
		return grads, nil
	}
	return apply(true, out, back, frames...), nil
}

// StackSeq stacks T states of shape [B, D] into a trajectory of shape
// [B, T, D]. Same backward caveat as StackFrames.
func StackSeq(steps []*Node) (*Node, error) {
	if len(steps) == 0 {
		return nil, errors.New("stackseq: no steps")
	}
	ss := steps[0].Shape()
	if ss.Dims() != 2 {
		return nil, errors.Errorf("stackseq: want [B,D] steps, got shape %v", ss)
	}
	for _, s := range steps[1:] {
		if !s.Shape().Eq(ss) {
			return nil, errors.Errorf("stackseq: step shape %v does not match %v", s.Shape(), ss)
		}
	}
	b, d := ss[0], ss[1]
	t := len(steps)
	backing := make([]float32, b*t*d)
	for ti, s := range steps {
		sd := s.Data()
		for bi := 0; bi < b; bi++ {
			copy(backing[(bi*t+ti)*d:(bi*t+ti+1)*d], sd[bi*d:(bi+1)*d])
		}
	}
	out := tensor.New(tensor.WithShape(b, t, d), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		gd := g.Data()
		grads := make([]*Node, t)
		for ti := range steps {
			sg := make([]float32, b*d)
			for bi := 0; bi < b; bi++ {
				copy(sg[bi*d:(bi+1)*d], gd[(bi*t+ti)*d:(bi*t+ti+1)*d])
			}
			grads[ti] = FromSlice(sg, b, d)
		}
		return grads, nil
	}
	return apply(true, out, back, steps...), nil
}

const bceEps = 1e-7

// BCE is the mean binary cross-entropy between sigmoid scores and targets,
// clamped away from 0 and 1. The target is treated as a constant.
func BCE(out, target *Node) (*Node, error) {
	if err := sameShape(out, target); err != nil {
		return nil, errors.Wrap(err, "bce")
	}
	od, td := out.Data(), target.Data()
	n := float32(len(od))
	var loss float32
	for i, o := range od {
		o = clamp(o, bceEps, 1-bceEps)
		y := td[i]
		loss -= y*math32.Log(o) + (1-y)*math32.Log(1-o)
	}
	loss /= n
	res := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{loss}))
	back := func(rec bool, g *Node) ([]*Node, error) {
		g0 := g.Scalar()
		gout := make([]float32, len(od))
		for i, o := range od {
			o = clamp(o, bceEps, 1-bceEps)
			gout[i] = g0 * (o - td[i]) / (o * (1 - o)) / n
		}
		return []*Node{FromSlice(gout, out.Shape().Clone()...), nil}, nil
	}
	return apply(true, res, back, out, target), nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
