package tape

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// The exported constructors below always record on the tape. Their lowercase
// counterparts take a rec flag so that backward closures can rebuild the same
// computations either as plain values (first-order backward) or as recorded
// nodes (create-graph mode). Every backward is expressed through these same
// constructors, which is what makes Grad's output differentiable in turn.

// Scalar returns the single element of a size-1 node.
func (n *Node) Scalar() float32 { return n.Data()[0] }

func sameShape(a, b *Node) error {
	if !a.Shape().Eq(b.Shape()) {
		return errors.Errorf("tape: shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	return nil
}

func cloneOf(a *Node) *tensor.Dense { return a.value.Clone().(*tensor.Dense) }

// Add returns a + b elementwise.
func Add(a, b *Node) (*Node, error) { return add(true, a, b) }

func add(rec bool, a, b *Node) (*Node, error) {
	if err := sameShape(a, b); err != nil {
		return nil, errors.Wrap(err, "add")
	}
	out := cloneOf(a)
	vecf32.Add(out.Data().([]float32), b.Data())
	back := func(rec bool, g *Node) ([]*Node, error) {
		return []*Node{g, g}, nil
	}
	return apply(rec, out, back, a, b), nil
}

// Sub returns a - b elementwise.
func Sub(a, b *Node) (*Node, error) { return sub(true, a, b) }

func sub(rec bool, a, b *Node) (*Node, error) {
	if err := sameShape(a, b); err != nil {
		return nil, errors.Wrap(err, "sub")
	}
	out := cloneOf(a)
	vecf32.Sub(out.Data().([]float32), b.Data())
	back := func(rec bool, g *Node) ([]*Node, error) {
		ng, err := scale(rec, g, -1)
		if err != nil {
			return nil, err
		}
		return []*Node{g, ng}, nil
	}
	return apply(rec, out, back, a, b), nil
}

// Mul returns the Hadamard product a * b.
func Mul(a, b *Node) (*Node, error) { return mul(true, a, b) }

func mul(rec bool, a, b *Node) (*Node, error) {
	if err := sameShape(a, b); err != nil {
		return nil, errors.Wrap(err, "mul")
	}
	out := cloneOf(a)
	vecf32.Mul(out.Data().([]float32), b.Data())
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := mul(rec, g, b)
		if err != nil {
			return nil, err
		}
		gb, err := mul(rec, g, a)
		if err != nil {
			return nil, err
		}
		return []*Node{ga, gb}, nil
	}
	return apply(rec, out, back, a, b), nil
}

// Square returns a * a.
func Square(a *Node) (*Node, error) { return square(true, a) }

func square(rec bool, a *Node) (*Node, error) {
	out := cloneOf(a)
	vecf32.Mul(out.Data().([]float32), a.Data())
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := mul(rec, g, a)
		if err != nil {
			return nil, err
		}
		if ga, err = scale(rec, ga, 2); err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Scale returns s * a.
func Scale(a *Node, s float32) (*Node, error) { return scale(true, a, s) }

func scale(rec bool, a *Node, s float32) (*Node, error) {
	out := cloneOf(a)
	vecf32.Scale(out.Data().([]float32), s)
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := scale(rec, g, s)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Neg returns -a.
func Neg(a *Node) (*Node, error) { return scale(true, a, -1) }

// Affine returns m*a + c elementwise.
func Affine(a *Node, m, c float32) (*Node, error) { return affine(true, a, m, c) }

func affine(rec bool, a *Node, m, c float32) (*Node, error) {
	out := cloneOf(a)
	data := out.Data().([]float32)
	vecf32.Scale(data, m)
	vecf32.Trans(data, c)
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := scale(rec, g, m)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Sum reduces a to a scalar.
func Sum(a *Node) (*Node, error) { return sum(true, a) }

func sum(rec bool, a *Node) (*Node, error) {
	out := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{vecf32.Sum(a.Data())}))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := expand(rec, g, a.Shape())
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Mean reduces a to its scalar mean.
func Mean(a *Node) (*Node, error) {
	s, err := Sum(a)
	if err != nil {
		return nil, err
	}
	return Scale(s, 1/float32(a.Shape().TotalSize()))
}

// Expand broadcasts a scalar to the given shape.
func Expand(a *Node, shape tensor.Shape) (*Node, error) { return expand(true, a, shape) }

func expand(rec bool, a *Node, shape tensor.Shape) (*Node, error) {
	if a.Shape().TotalSize() != 1 {
		return nil, errors.Errorf("expand: want scalar, got shape %v", a.Shape())
	}
	backing := make([]float32, shape.TotalSize())
	v := a.Data()[0]
	for i := range backing {
		backing[i] = v
	}
	out := tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := sum(rec, g)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Abs returns |a|. Its derivative treats sign(a) as constant.
func Abs(a *Node) (*Node, error) { return absOp(true, a) }

func absOp(rec bool, a *Node) (*Node, error) {
	in := a.Data()
	backing := make([]float32, len(in))
	sign := make([]float32, len(in))
	for i, v := range in {
		backing[i] = math32.Abs(v)
		switch {
		case v > 0:
			sign[i] = 1
		case v < 0:
			sign[i] = -1
		}
	}
	out := tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(backing))
	signN := FromSlice(sign, a.Shape().Clone()...)
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := mul(rec, g, signN)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Sigmoid returns 1/(1+exp(-a)) elementwise.
func Sigmoid(a *Node) (*Node, error) { return sigmoid(true, a) }

func sigmoid(rec bool, a *Node) (*Node, error) {
	in := a.Data()
	backing := make([]float32, len(in))
	for i, v := range in {
		backing[i] = 1 / (1 + math32.Exp(-v))
	}
	out := tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(backing))

	var outN *Node
	back := func(rec bool, g *Node) ([]*Node, error) {
		oms, err := affine(rec, outN, -1, 1)
		if err != nil {
			return nil, err
		}
		d, err := mul(rec, outN, oms)
		if err != nil {
			return nil, err
		}
		ga, err := mul(rec, g, d)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	outN = apply(rec, out, back, a)
	return outN, nil
}

// Tanh returns tanh(a) elementwise.
func Tanh(a *Node) (*Node, error) { return tanhOp(true, a) }

func tanhOp(rec bool, a *Node) (*Node, error) {
	in := a.Data()
	backing := make([]float32, len(in))
	for i, v := range in {
		backing[i] = math32.Tanh(v)
	}
	out := tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(backing))

	var outN *Node
	back := func(rec bool, g *Node) ([]*Node, error) {
		sq, err := square(rec, outN)
		if err != nil {
			return nil, err
		}
		d, err := affine(rec, sq, -1, 1)
		if err != nil {
			return nil, err
		}
		ga, err := mul(rec, g, d)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	outN = apply(rec, out, back, a)
	return outN, nil
}

// LeakyReLU returns a where a > 0 and alpha*a elsewhere.
func LeakyReLU(a *Node, alpha float32) (*Node, error) { return leakyReLU(true, a, alpha) }

func leakyReLU(rec bool, a *Node, alpha float32) (*Node, error) {
	in := a.Data()
	backing := make([]float32, len(in))
	mask := make([]float32, len(in))
	for i, v := range in {
		if v > 0 {
			backing[i] = v
			mask[i] = 1
		} else {
			backing[i] = alpha * v
			mask[i] = alpha
		}
	}
	out := tensor.New(tensor.WithShape(a.Shape().Clone()...), tensor.WithBacking(backing))
	maskN := FromSlice(mask, a.Shape().Clone()...)
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := mul(rec, g, maskN)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// MatMul multiplies a (m×k) by b (k×n).
func MatMul(a, b *Node) (*Node, error) { return matmul(true, a, b) }

func matmul(rec bool, a, b *Node) (*Node, error) {
	as, bs := a.Shape(), b.Shape()
	if as.Dims() != 2 || bs.Dims() != 2 || as[1] != bs[0] {
		return nil, errors.Errorf("matmul: incompatible shapes %v × %v", as, bs)
	}
	m, k, n := as[0], as[1], bs[1]
	ad, bd := a.Data(), b.Data()
	backing := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := ad[i*k+p]
			if av == 0 {
				continue
			}
			brow := bd[p*n : (p+1)*n]
			orow := backing[i*n : (i+1)*n]
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	out := tensor.New(tensor.WithShape(m, n), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		bt, err := transpose(rec, b)
		if err != nil {
			return nil, err
		}
		ga, err := matmul(rec, g, bt)
		if err != nil {
			return nil, err
		}
		at, err := transpose(rec, a)
		if err != nil {
			return nil, err
		}
		gb, err := matmul(rec, at, g)
		if err != nil {
			return nil, err
		}
		return []*Node{ga, gb}, nil
	}
	return apply(rec, out, back, a, b), nil
}

// Transpose transposes a 2D node.
func Transpose(a *Node) (*Node, error) { return transpose(true, a) }

func transpose(rec bool, a *Node) (*Node, error) {
	as := a.Shape()
	if as.Dims() != 2 {
		return nil, errors.Errorf("transpose: want matrix, got shape %v", as)
	}
	m, n := as[0], as[1]
	in := a.Data()
	backing := make([]float32, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			backing[j*m+i] = in[i*n+j]
		}
	}
	out := tensor.New(tensor.WithShape(n, m), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := transpose(rec, g)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// AddBias adds a length-n bias to every row of an m×n node.
func AddBias(x, b *Node) (*Node, error) { return addBias(true, x, b) }

func addBias(rec bool, x, b *Node) (*Node, error) {
	xs, bs := x.Shape(), b.Shape()
	if xs.Dims() != 2 || bs.Dims() != 1 || bs[0] != xs[1] {
		return nil, errors.Errorf("addbias: incompatible shapes %v + %v", xs, bs)
	}
	m, n := xs[0], xs[1]
	out := cloneOf(x)
	od := out.Data().([]float32)
	bd := b.Data()
	for i := 0; i < m; i++ {
		vecf32.Add(od[i*n:(i+1)*n], bd)
	}
	back := func(rec bool, g *Node) ([]*Node, error) {
		gb, err := sumRows(rec, g)
		if err != nil {
			return nil, err
		}
		return []*Node{g, gb}, nil
	}
	return apply(rec, out, back, x, b), nil
}

// SumRows reduces an m×n node to its length-n column sums.
func SumRows(a *Node) (*Node, error) { return sumRows(true, a) }

func sumRows(rec bool, a *Node) (*Node, error) {
	as := a.Shape()
	if as.Dims() != 2 {
		return nil, errors.Errorf("sumrows: want matrix, got shape %v", as)
	}
	m, n := as[0], as[1]
	in := a.Data()
	backing := make([]float32, n)
	for i := 0; i < m; i++ {
		vecf32.Add(backing, in[i*n:(i+1)*n])
	}
	out := tensor.New(tensor.WithShape(n), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := broadcastRows(rec, g, m)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// BroadcastRows repeats a length-n node as m identical rows.
func BroadcastRows(a *Node, m int) (*Node, error) { return broadcastRows(true, a, m) }

func broadcastRows(rec bool, a *Node, m int) (*Node, error) {
	as := a.Shape()
	if as.Dims() != 1 {
		return nil, errors.Errorf("broadcastrows: want vector, got shape %v", as)
	}
	n := as[0]
	in := a.Data()
	backing := make([]float32, m*n)
	for i := 0; i < m; i++ {
		copy(backing[i*n:(i+1)*n], in)
	}
	out := tensor.New(tensor.WithShape(m, n), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := sumRows(rec, g)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// Reshape returns a with a new shape of the same total size.
func Reshape(a *Node, shape ...int) (*Node, error) { return reshape(true, a, shape...) }

func reshape(rec bool, a *Node, shape ...int) (*Node, error) {
	if tensor.Shape(shape).TotalSize() != a.Shape().TotalSize() {
		return nil, errors.Errorf("reshape: cannot reshape %v to %v", a.Shape(), shape)
	}
	out := cloneOf(a)
	if err := out.Reshape(shape...); err != nil {
		return nil, errors.Wrap(err, "reshape")
	}
	orig := a.Shape().Clone()
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := reshape(rec, g, orig...)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// NarrowLast slices channels [from, to) of the last axis.
func NarrowLast(a *Node, from, to int) (*Node, error) { return narrowLast(true, a, from, to) }

func narrowLast(rec bool, a *Node, from, to int) (*Node, error) {
	as := a.Shape()
	last := as[as.Dims()-1]
	if from < 0 || to > last || from >= to {
		return nil, errors.Errorf("narrowlast: bad range [%d, %d) for last axis %d", from, to, last)
	}
	w := to - from
	outer := as.TotalSize() / last
	in := a.Data()
	backing := make([]float32, outer*w)
	for i := 0; i < outer; i++ {
		copy(backing[i*w:(i+1)*w], in[i*last+from:i*last+to])
	}
	shape := as.Clone()
	shape[len(shape)-1] = w
	out := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := padLast(rec, g, from, last)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// PadLast embeds a at offset from of a zero tensor whose last axis is last.
func PadLast(a *Node, from, last int) (*Node, error) { return padLast(true, a, from, last) }

func padLast(rec bool, a *Node, from, last int) (*Node, error) {
	as := a.Shape()
	w := as[as.Dims()-1]
	if from < 0 || from+w > last {
		return nil, errors.Errorf("padlast: width %d at offset %d exceeds last axis %d", w, from, last)
	}
	outer := as.TotalSize() / w
	in := a.Data()
	backing := make([]float32, outer*last)
	for i := 0; i < outer; i++ {
		copy(backing[i*last+from:i*last+from+w], in[i*w:(i+1)*w])
	}
	shape := as.Clone()
	shape[len(shape)-1] = last
	out := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := narrowLast(rec, g, from, from+w)
		if err != nil {
			return nil, err
		}
		return []*Node{ga}, nil
	}
	return apply(rec, out, back, a), nil
}

// ConcatLast concatenates a and b along the last axis.
func ConcatLast(a, b *Node) (*Node, error) { return concatLast(true, a, b) }

func concatLast(rec bool, a, b *Node) (*Node, error) {
	as, bs := a.Shape(), b.Shape()
	if as.Dims() != bs.Dims() {
		return nil, errors.Errorf("concatlast: rank mismatch %v vs %v", as, bs)
	}
	for i := 0; i < as.Dims()-1; i++ {
		if as[i] != bs[i] {
			return nil, errors.Errorf("concatlast: shape mismatch %v vs %v", as, bs)
		}
	}
	la, lb := as[as.Dims()-1], bs[bs.Dims()-1]
	outer := as.TotalSize() / la
	ad, bd := a.Data(), b.Data()
	w := la + lb
	backing := make([]float32, outer*w)
	for i := 0; i < outer; i++ {
		copy(backing[i*w:i*w+la], ad[i*la:(i+1)*la])
		copy(backing[i*w+la:(i+1)*w], bd[i*lb:(i+1)*lb])
	}
	shape := as.Clone()
	shape[len(shape)-1] = w
	out := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	back := func(rec bool, g *Node) ([]*Node, error) {
		ga, err := narrowLast(rec, g, 0, la)
		if err != nil {
			return nil, err
		}
		gb, err := narrowLast(rec, g, la, w)
		if err != nil {
			return nil, err
		}
		return []*Node{ga, gb}, nil
	}
	return apply(rec, out, back, a, b), nil
}
