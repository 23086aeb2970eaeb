package calltree

import (
	"errors"

	"flametree/internal/frame"
)

// ErrNotImplemented is returned by the profile range-extension operations.
// Splicing two profile segments together has no defined merge semantics yet,
// so the operations fail loudly instead of producing a silently wrong tree.
var ErrNotImplemented = errors.New("calltree: profile range extension is not implemented")

// Metadata describes the thread a profile was sampled from. It is fixed at
// construction time.
type Metadata struct {
	ThreadID   string
	ThreadName string
	StartedAt  uint64
	EndedAt    uint64
	Unit       string
}

// Profile owns a call tree built from a time-ordered stream of stack
// samples. Samples and Weights are parallel: Samples[i] is the terminal
// (deepest) node of the i-th accepted sample and Weights[i] its combined
// duration after adjacent-duplicate collapsing.
//
// Construction is strictly sequential: AppendSample must be called in
// non-decreasing timestamp order, since the child locking and common-prefix
// merge rules depend on that ordering. After Build returns, the profile must
// be treated as read-only; read-only fan-out to multiple consumers needs no
// further synchronization.
type Profile struct {
	Root    *Node
	Samples []*Node
	Weights []uint64

	// Duration is the nominal duration of the sampled range, raised to the
	// sum of sample weights by Build if the nominal value undercounts.
	Duration uint64

	// MinFrameDuration is the smallest non-zero sample duration observed,
	// used downstream to bound zoom granularity. Zero means unset.
	MinFrameDuration uint64

	Meta Metadata
}

// NewProfile returns an empty profile with a synthetic root node. The root
// frame is a per-profile sentinel so that its aggregates never leak across
// profiles.
func NewProfile(meta Metadata) *Profile {
	root := NewNode(&frame.Frame{Function: "root"}, nil)
	return &Profile{Root: root, Meta: meta}
}

// EmptyProfile is the canonical result for a degenerate input (a chunk or
// thread with at most one raw sample): no samples, no children under the
// root, zero duration.
func EmptyProfile(meta Metadata) *Profile {
	p := NewProfile(meta)
	return p.Build()
}

// AppendSample folds one resolved stack into the call tree. The stack is in
// root-to-leaf order: stack[0] is the outermost caller. Zero-duration
// samples carry no attributable time and are discarded without any state
// change, as are empty stacks.
func (p *Profile) AppendSample(stack []*frame.Frame, duration uint64) {
	if duration == 0 || len(stack) == 0 {
		return
	}

	node := p.Root
	p.Root.TotalWeight += duration

	// Nodes resolved for this sample so far, outermost first. Used for the
	// recursion scan and for the weight propagation afterwards.
	resolved := make([]*Node, 0, len(stack))

	for _, f := range stack {
		var next *Node
		// Merge into the most recently appended child when it holds the
		// same frame and is still open. Older siblings are locked, so this
		// single comparison is the whole merge check.
		if n := len(node.Children); n > 0 {
			last := node.Children[n-1]
			if !last.IsLocked() && last.Frame == f {
				next = last
			}
		}
		if next == nil {
			next = NewNode(f, node)
			node.Children = append(node.Children, next)
		}
		node = next
		node.TotalWeight += duration

		// Walk back up the levels already resolved for this sample and link
		// the nearest one sharing this frame: a self-recursive call path.
		for i := len(resolved) - 1; i >= 0; i-- {
			if resolved[i].Frame == node.Frame {
				resolved[i].Recursive = node
				node.Recursive = resolved[i]
				break
			}
		}
		resolved = append(resolved, node)
	}

	// Exactly one node per sample receives self time: the terminal one.
	node.SelfWeight += duration
	node.Frame.SelfWeight += duration

	if p.MinFrameDuration == 0 || duration < p.MinFrameDuration {
		p.MinFrameDuration = duration
	}

	// Any child of the terminal node was populated by an earlier sample
	// that went deeper. Timestamp ordering guarantees no later sample can
	// extend such a child, so close them all now.
	for _, child := range node.Children {
		child.Lock()
	}

	for _, n := range resolved {
		n.Frame.TotalWeight += duration
		n.Count++
	}

	// Consecutive samples ending on the same node collapse into a single
	// timeline entry with combined weight.
	if n := len(p.Samples); n > 0 && p.Samples[n-1] == node {
		p.Weights[n-1] += duration
	} else {
		p.Samples = append(p.Samples, node)
		p.Weights = append(p.Weights, duration)
	}
}

// Build finalizes the profile's aggregate statistics. Idempotent; the
// profile is read-only afterwards.
func (p *Profile) Build() *Profile {
	var sum uint64
	for _, w := range p.Weights {
		sum += w
	}
	if sum > p.Duration {
		p.Duration = sum
	}
	// No sample contributed non-zero time: disable fine-grained zoom by
	// making the minimum frame duration span the whole profile.
	if p.MinFrameDuration == 0 {
		p.MinFrameDuration = p.Duration
	}
	return p
}

// ExtendLeft would splice an earlier profile segment in front of this one.
// Not implemented: there are no merge semantics for the call trees yet.
func (p *Profile) ExtendLeft(other *Profile) error {
	return ErrNotImplemented
}

// ExtendRight would splice a later profile segment after this one. Not
// implemented, same as ExtendLeft.
func (p *Profile) ExtendRight(other *Profile) error {
	return ErrNotImplemented
}
