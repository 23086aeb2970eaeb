package calltree

import "flametree/internal/frame"

// Node is one distinct call-path position in the tree: a frame reached via a
// specific sequence of ancestor frames. Children are kept in first-seen
// order, which the fold algorithm relies on for the common-prefix merge.
type Node struct {
	Frame    *frame.Frame
	Parent   *Node
	Children []*Node

	// SelfWeight is time spent in exactly this node, TotalWeight includes
	// all descendants. Count is the number of samples whose stack passed
	// through this node.
	SelfWeight  uint64
	TotalWeight uint64
	Count       uint64

	// Recursive points at another node in the same stack with the same
	// frame. The link is mutual; it marks the subtree as self-recursive so
	// consumers can fold recursive stacks for display.
	Recursive *Node

	locked bool
}

func NewNode(f *frame.Frame, parent *Node) *Node {
	return &Node{Frame: f, Parent: parent}
}

// Lock closes the node's child list. Once locked, the node can never again
// be the target of a common-prefix merge. Idempotent, and shallow: children
// are not locked implicitly.
func (n *Node) Lock() {
	n.locked = true
}

func (n *Node) IsLocked() bool {
	return n.locked
}
