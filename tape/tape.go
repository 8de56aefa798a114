// Package tape is a small reverse-mode autodiff engine over float32 dense
// tensors. Unlike a define-then-run graph, the tape is built eagerly by the
// op constructors, supports several backward passes per iteration over
// shared subgraphs (with explicit retain/free), detachment, and a
// create-graph gradient (Grad) whose output is itself differentiable.
package tape

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

var Float = tensor.Float32

// backwardFn computes the gradients of a node's parents given the gradient
// flowing into the node. rec controls whether the returned gradients are
// recorded on the tape (create-graph mode). Entries may be nil for parents
// that do not require grad.
type backwardFn func(rec bool, grad *Node) ([]*Node, error)

// Node is a value on the tape. Leaves hold data (parameters, inputs,
// constants); op nodes additionally record their parents and a backward
// closure until the graph they belong to is freed.
type Node struct {
	value *tensor.Dense
	grad  *Node

	requiresGrad bool
	parents      []*Node
	back         backwardFn
	freed        bool
}

// New returns a zero-valued leaf of the given shape.
func New(shape ...int) *Node {
	return &Node{value: tensor.New(tensor.WithShape(shape...), tensor.Of(Float))}
}

// FromDense wraps an existing dense tensor as a leaf. The backing is shared,
// not copied.
func FromDense(d *tensor.Dense) *Node { return &Node{value: d} }

// FromSlice wraps backing as a leaf of the given shape. The backing is
// shared, not copied.
func FromSlice(backing []float32, shape ...int) *Node {
	return FromDense(tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)))
}

// Value returns the underlying dense tensor.
func (n *Node) Value() *tensor.Dense { return n.value }

// Data returns the raw backing slice.
func (n *Node) Data() []float32 { return n.value.Data().([]float32) }

// Shape returns the node's shape.
func (n *Node) Shape() tensor.Shape { return n.value.Shape() }

// Dims returns the rank of the node's value.
func (n *Node) Dims() int { return n.value.Shape().Dims() }

// Grad returns the accumulated gradient, or nil if none has been
// accumulated since the last ZeroGrad.
func (n *Node) Grad() *Node { return n.grad }

// ZeroGrad drops the accumulated gradient.
func (n *Node) ZeroGrad() { n.grad = nil }

// RequiresGrad reports whether backward passes accumulate into this node.
func (n *Node) RequiresGrad() bool { return n.requiresGrad }

// SetRequiresGrad marks a leaf as requiring (or not requiring) gradient
// accumulation. Calling it on an op node is an error: requirement of
// non-leaves is derived from their parents.
func (n *Node) SetRequiresGrad(b bool) error {
	if n.back != nil || n.freed {
		return errors.New("tape: SetRequiresGrad on a non-leaf node")
	}
	n.requiresGrad = b
	return nil
}

// Detach returns a leaf sharing this node's value but severed from its
// history. Gradients never flow through a detached node.
func (n *Node) Detach() *Node { return &Node{value: n.value} }

// isLeaf reports whether n was created as a leaf (as opposed to an op node,
// freed or not).
func (n *Node) isLeaf() bool { return n.back == nil && !n.freed }

// apply builds an op node. Parents and the backward closure are recorded
// only when rec is true and at least one parent requires grad; otherwise the
// result is a plain leaf-like value, which is what backward passes in
// non-create-graph mode produce.
func apply(rec bool, out *tensor.Dense, back backwardFn, parents ...*Node) *Node {
	n := &Node{value: out}
	for _, p := range parents {
		if p != nil && p.requiresGrad {
			n.requiresGrad = true
			break
		}
	}
	if rec && n.requiresGrad {
		n.parents = parents
		n.back = back
	}
	return n
}

// topo appends the op nodes reachable from n in topological order (parents
// first). Freed nodes surface as an error: their backward closures are gone.
func topo(n *Node, seen map[*Node]bool, order *[]*Node) error {
	if seen[n] {
		return nil
	}
	seen[n] = true
	if n.freed {
		return errors.New("tape: graph has already been freed; use retain to backprop through it more than once")
	}
	if n.back == nil {
		return nil
	}
	for _, p := range n.parents {
		if p == nil || !p.requiresGrad {
			continue
		}
		if err := topo(p, seen, order); err != nil {
			return err
		}
	}
	*order = append(*order, n)
	return nil
}

// backward is the shared engine behind Backward and Grad.
func backward(root *Node, retain, createGraph, accumulate bool, want *Node) (*Node, error) {
	if !root.requiresGrad {
		return nil, errors.New("tape: root does not require grad")
	}
	if root.Shape().TotalSize() != 1 {
		return nil, errors.Errorf("tape: backward root must be scalar, got shape %v", root.Shape())
	}

	seen := make(map[*Node]bool)
	var order []*Node
	if err := topo(root, seen, &order); err != nil {
		return nil, err
	}

	grads := make(map[*Node]*Node)
	grads[root] = FromSlice([]float32{1}, 1)

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		g := grads[n]
		if g == nil {
			continue
		}
		pgrads, err := n.back(createGraph, g)
		if err != nil {
			return nil, err
		}
		if len(pgrads) != len(n.parents) {
			return nil, errors.Errorf("tape: op returned %d gradients for %d parents", len(pgrads), len(n.parents))
		}
		for j, p := range n.parents {
			if p == nil || !p.requiresGrad || pgrads[j] == nil {
				continue
			}
			if prev, ok := grads[p]; ok {
				acc, err := add(createGraph, prev, pgrads[j])
				if err != nil {
					return nil, err
				}
				grads[p] = acc
			} else {
				grads[p] = pgrads[j]
			}
		}
	}

	if accumulate {
		for n := range seen {
			if !n.isLeaf() || !n.requiresGrad {
				continue
			}
			g := grads[n]
			if g == nil {
				continue
			}
			if n.grad == nil {
				n.grad = FromDense(g.value.Clone().(*tensor.Dense))
			} else {
				vecf32.Add(n.grad.Data(), g.Data())
			}
		}
	}

	var out *Node
	if want != nil {
		out = grads[want]
		if out == nil {
			return nil, errors.New("tape: no gradient path from output to input")
		}
	}

	if !retain {
		for n := range seen {
			if n.back != nil {
				n.back = nil
				n.parents = nil
				n.freed = true
			}
		}
	}
	return out, nil
}

// Backward runs a backward pass from a scalar node, accumulating gradients
// into every reachable leaf that requires grad. Unless retain is true the
// visited graph is freed and a second backward through any part of it fails.
func (n *Node) Backward(retain bool) error {
	_, err := backward(n, retain, false, true, nil)
	return err
}

// Grad computes d(output)/d(input) in create-graph mode: the returned node
// is connected to the tape, so a further backward pass may flow through the
// gradient computation itself. The graph is kept alive. Leaf gradients are
// not touched.
func Grad(output, input *Node) (*Node, error) {
	if !input.requiresGrad {
		return nil, errors.New("tape: Grad input does not require grad")
	}
	return backward(output, true, true, false, input)
}
