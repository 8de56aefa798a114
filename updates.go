package hgan

import (
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"

	"github.com/gorgonia/hgan/tape"
)

// The update protocol. Per iteration: the video discriminator sees real and
// detached fake clips and steps; the image discriminator does the same on
// single frames; the generator side then backprops its non-detached fakes
// through both (frozen) discriminators plus the latent regularization and
// steps its own two optimizers. The ordering matters: each step reads the
// previous step's fully updated adversary. Failures abort the iteration
// where they happen; some optimizers may already have stepped, which is why
// callers checkpoint between iterations, never within one.

// retention states how many more backward passes will touch a forward
// output: morePasses keeps its graph alive, finalPass frees it.
type retention uint8

const (
	finalPass retention = iota
	morePasses
)

// backprop scores inputs against a constant target, backprops the loss and
// returns its scalar value along with the raw scores.
func (t *Trainer) backprop(dis Discriminator, inputs *tape.Node, y float32, keep retention) (float32, *tape.Node, error) {
	target := t.label.fill(inputs.Shape()[0], y)
	out, err := dis.Score(inputs)
	if err != nil {
		return 0, nil, err
	}
	loss, err := t.criterion.Loss(out, target)
	if err != nil {
		return 0, nil, errors.Wrap(err, "criterion")
	}
	if err := loss.Backward(keep == morePasses); err != nil {
		return 0, nil, err
	}
	return loss.Scalar(), out, nil
}

// r1Loss is the R1 regularizer: gamma/2 times the batch mean of the squared
// L2 norm of d(sum(realOut))/d(realInput). The gradient is taken in
// create-graph mode so the penalty's own backward pass flows through it,
// accumulating on top of the discriminator gradients already in place.
//
// https://github.com/rosinality/style-based-gan-pytorch/blob/a3d000e707b70d1a5fc277912dc9d7432d6e6069/train.py
func r1Loss(gamma float32, realOut, realInput *tape.Node) (float32, error) {
	total, err := tape.Sum(realOut)
	if err != nil {
		return 0, err
	}
	grad, err := tape.Grad(total, realInput)
	if err != nil {
		return 0, err
	}
	sq, err := tape.Square(grad)
	if err != nil {
		return 0, err
	}
	norm, err := tape.Sum(sq)
	if err != nil {
		return 0, err
	}
	batch := float32(realInput.Shape()[0])
	penalty, err := tape.Scale(norm, gamma/2/batch)
	if err != nil {
		return 0, err
	}
	if err := penalty.Backward(false); err != nil {
		return 0, err
	}
	return penalty.Scalar(), nil
}

// UpdateVideoDiscriminator runs one discriminator round on whole clips:
// real at the smoothed label with the graph retained for the penalty,
// optionally the R1 term, detached fakes at 0, then one optimizer step.
func (t *Trainer) UpdateVideoDiscriminator(real, fake *Batch) (map[string]float32, map[string]float32, error) {
	if real == nil || real.Videos == nil || fake == nil || fake.Videos == nil {
		return nil, nil, errors.New("video discriminator: batch has no videos")
	}
	realVideos := real.Videos
	v := t.conf.RNNType.variant()

	t.disV.ZeroGrad()

	// needed for the r1 penalty. The recurrent variant leaves real video
	// untracked, so it can never receive the video penalty.
	if err := realVideos.SetRequiresGrad(v.trackRealVideos); err != nil {
		return nil, nil, errors.Wrap(err, "video discriminator")
	}

	errReal, realOut, err := t.backprop(t.disV, realVideos, t.conf.RealLabel, morePasses)
	if err != nil {
		return nil, nil, errors.Wrap(err, "video discriminator: real backprop")
	}

	if t.conf.R1Gamma != 0 && realVideos.RequiresGrad() {
		if _, err := r1Loss(t.conf.R1Gamma, realOut, realVideos); err != nil {
			return nil, nil, errors.Wrap(err, "video discriminator: gradient penalty")
		}
	}

	errFake, fakeOut, err := t.backprop(t.disV, fake.Videos.Detach(), 0, finalPass)
	if err != nil {
		return nil, nil, errors.Wrap(err, "video discriminator: fake backprop")
	}

	if err := t.optDv.Step(); err != nil {
		return nil, nil, errors.Wrap(err, "video discriminator: optimizer step")
	}

	errs := map[string]float32{"Dv_real": errReal, "Dv_fake": errFake, "Dv": errReal + errFake}
	means := map[string]float32{"Dv_real": batchMean(realOut), "Dv_fake": batchMean(fakeOut)}
	return errs, means, nil
}

// UpdateImageDiscriminator is the single-frame mirror of the video step.
// Real images always track gradients, whatever the dynamics variant.
func (t *Trainer) UpdateImageDiscriminator(real, fake *Batch) (map[string]float32, map[string]float32, error) {
	if real == nil || real.Img == nil || fake == nil || fake.Img == nil {
		return nil, nil, errors.New("image discriminator: batch has no images")
	}
	realImg := real.Img

	t.disI.ZeroGrad()

	// needed for the r1 penalty
	if err := realImg.SetRequiresGrad(true); err != nil {
		return nil, nil, errors.Wrap(err, "image discriminator")
	}

	errReal, realOut, err := t.backprop(t.disI, realImg, t.conf.RealLabel, morePasses)
	if err != nil {
		return nil, nil, errors.Wrap(err, "image discriminator: real backprop")
	}

	if t.conf.R1Gamma != 0 {
		if _, err := r1Loss(t.conf.R1Gamma, realOut, realImg); err != nil {
			return nil, nil, errors.Wrap(err, "image discriminator: gradient penalty")
		}
	}

	errFake, fakeOut, err := t.backprop(t.disI, fake.Img.Detach(), 0, finalPass)
	if err != nil {
		return nil, nil, errors.Wrap(err, "image discriminator: fake backprop")
	}

	if err := t.optDi.Step(); err != nil {
		return nil, nil, errors.Wrap(err, "image discriminator: optimizer step")
	}

	errs := map[string]float32{"Di_real": errReal, "Di_fake": errFake, "Di": errReal + errFake}
	means := map[string]float32{"Di_real": batchMean(realOut), "Di_fake": batchMean(fakeOut)}
	return errs, means, nil
}

// UpdateGenerator backprops the non-detached fakes through both
// discriminators at the smoothed label (the discriminators accumulate
// gradients here but are never stepped), adds the latent drift penalty for
// the phase-space variant, and steps the decoder and dynamics optimizers.
func (t *Trainer) UpdateGenerator(fake *Batch) (map[string]float32, error) {
	if fake == nil || fake.Videos == nil || fake.Img == nil {
		return nil, errors.New("generator: fake batch is incomplete")
	}

	v := t.conf.RNNType.variant()
	t.gen.ZeroGrad()
	t.dyn.ZeroGrad()

	// the generator subgraph is shared by every backward pass below; only
	// the final one may free it
	errGv, _, err := t.backprop(t.disV, fake.Videos, t.conf.RealLabel, morePasses)
	if err != nil {
		return nil, errors.Wrap(err, "generator: video backprop")
	}

	errGi, _, err := t.backprop(t.disI, fake.Img, t.conf.RealLabel, v.imgRetention)
	if err != nil {
		return nil, errors.Wrap(err, "generator: image backprop")
	}

	if v.latentPenalty {
		if fake.DLatent == nil {
			return nil, errors.New("generator: phase-space batch has no latent derivatives")
		}
		if _, err := t.latentLoss(fake.DLatent); err != nil {
			return nil, errors.Wrap(err, "generator: latent regularization")
		}
	}

	if err := t.optG.Step(); err != nil {
		return nil, errors.Wrap(err, "generator: optimizer step")
	}
	if err := t.optRNN.Step(); err != nil {
		return nil, errors.Wrap(err, "generator: dynamics optimizer step")
	}

	return map[string]float32{"Gv": errGv, "Gi": errGi}, nil
}

// latentLoss penalizes drift in the non-cyclic half of the derivative
// trajectory: mean over the batch of the absolute momentum derivatives,
// weighted by CyclicCoordLoss.
func (t *Trainer) latentLoss(dlatent *tape.Node) (float32, error) {
	shape := dlatent.Shape()
	width := shape[shape.Dims()-1]
	if t.conf.Nets.QSize >= width {
		return 0, errors.Errorf("q size %d leaves no non-cyclic channels in derivative width %d", t.conf.Nets.QSize, width)
	}
	dpdt, err := tape.NarrowLast(dlatent, t.conf.Nets.QSize, width)
	if err != nil {
		return 0, err
	}
	mag, err := tape.Abs(dpdt)
	if err != nil {
		return 0, err
	}
	total, err := tape.Sum(mag)
	if err != nil {
		return 0, err
	}
	loss, err := tape.Scale(total, t.conf.CyclicCoordLoss/float32(shape[0]))
	if err != nil {
		return 0, err
	}
	if err := loss.Backward(false); err != nil {
		return 0, err
	}
	return loss.Scalar(), nil
}

// UpdateAll runs the three update steps in their required order and merges
// the reports. The key sets are disjoint by construction.
func (t *Trainer) UpdateAll(real, fake *Batch) (map[string]float32, map[string]float32, error) {
	errDv, meanDv, err := t.UpdateVideoDiscriminator(real, fake)
	if err != nil {
		return nil, nil, err
	}
	errDi, meanDi, err := t.UpdateImageDiscriminator(real, fake)
	if err != nil {
		return nil, nil, err
	}
	errG, err := t.UpdateGenerator(fake)
	if err != nil {
		return nil, nil, err
	}

	errs := make(map[string]float32, len(errDv)+len(errDi)+len(errG))
	for k, v := range errDv {
		errs[k] = v
	}
	for k, v := range errDi {
		errs[k] = v
	}
	for k, v := range errG {
		errs[k] = v
	}
	means := make(map[string]float32, len(meanDv)+len(meanDi))
	for k, v := range meanDv {
		means[k] = v
	}
	for k, v := range meanDi {
		means[k] = v
	}
	return errs, means, nil
}

func batchMean(out *tape.Node) float32 {
	data := out.Data()
	return vecf32.Sum(data) / float32(len(data))
}
