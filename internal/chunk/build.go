package chunk

import (
	"errors"
	"fmt"

	"flametree/internal/calltree"
	"flametree/internal/frame"
)

var (
	// ErrOutOfOrder rejects sample streams whose timestamps go backwards.
	// The fold algorithm's locking and merge rules are only correct for
	// time-ordered input, so this is checked at the boundary instead of
	// being assumed.
	ErrOutOfOrder = errors.New("chunk: samples are out of timestamp order")

	// ErrUnknownStack and ErrUnknownFrame mean the sample stream and the
	// stack or frame table are out of sync. There is no safe partial
	// result, so construction of the whole chunk aborts.
	ErrUnknownStack = errors.New("chunk: sample references unknown stack")
	ErrUnknownFrame = errors.New("chunk: stack references unknown frame")
)

const (
	platformCocoa        = "cocoa"
	cocoaMainThreadQueue = "com.apple.main-thread"
)

// queueLabelFallbacks maps a platform to its rule for deriving a thread name
// from a dispatch-queue label when the thread table has no entry. Platforms
// without an entry get no fallback.
var queueLabelFallbacks = map[string]func(label string) string{
	platformCocoa: func(label string) string {
		// The reserved main-thread queue label carries no information
		// beyond what the thread table already has.
		if label == cocoaMainThreadQueue {
			return ""
		}
		return label
	},
}

// BuildProfiles folds the chunk's samples into one call tree per thread,
// keyed by thread ID. Threads with at most one raw sample yield the
// canonical empty profile: a lone sample's duration is measured against the
// stream start and is therefore zero.
func BuildProfiles(c *Chunk) (map[string]*calltree.Profile, error) {
	if err := checkOrder(c.Profile.Samples); err != nil {
		return nil, err
	}

	byThread := make(map[string][]Sample)
	var threadOrder []string
	for _, s := range c.Profile.Samples {
		if _, seen := byThread[s.ThreadID]; !seen {
			threadOrder = append(threadOrder, s.ThreadID)
		}
		byThread[s.ThreadID] = append(byThread[s.ThreadID], s)
	}

	profiles := make(map[string]*calltree.Profile, len(byThread))
	for _, tid := range threadOrder {
		samples := byThread[tid]
		meta := calltree.Metadata{
			ThreadID:   tid,
			ThreadName: c.threadName(tid, samples),
			StartedAt:  samples[0].TimestampNS,
			EndedAt:    samples[len(samples)-1].TimestampNS,
			Unit:       "nanoseconds",
		}

		if len(samples) <= 1 {
			profiles[tid] = calltree.EmptyProfile(meta)
			continue
		}

		p := calltree.NewProfile(meta)
		p.Duration = meta.EndedAt - meta.StartedAt
		prev := samples[0].TimestampNS
		for i, s := range samples {
			stack, err := c.resolveStack(s)
			if err != nil {
				return nil, fmt.Errorf("thread %s sample %d: %w", tid, i, err)
			}
			p.AppendSample(stack, s.TimestampNS-prev)
			prev = s.TimestampNS
		}
		profiles[tid] = p.Build()
	}
	return profiles, nil
}

func checkOrder(samples []Sample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].TimestampNS < samples[i-1].TimestampNS {
			return fmt.Errorf("%w: sample %d at %d follows %d", ErrOutOfOrder, i, samples[i].TimestampNS, samples[i-1].TimestampNS)
		}
	}
	return nil
}

// resolveStack maps a sample's stack ID to shared frame references. The
// returned slice aliases the chunk's frame table so that every call tree
// node calling a frame accumulates into the same record.
func (c *Chunk) resolveStack(s Sample) ([]*frame.Frame, error) {
	if s.StackID < 0 || s.StackID >= len(c.Profile.Stacks) {
		return nil, fmt.Errorf("%w: stack %d of %d", ErrUnknownStack, s.StackID, len(c.Profile.Stacks))
	}
	indices := c.Profile.Stacks[s.StackID]
	stack := make([]*frame.Frame, len(indices))
	for i, fi := range indices {
		if fi < 0 || fi >= len(c.Profile.Frames) {
			return nil, fmt.Errorf("%w: frame %d of %d", ErrUnknownFrame, fi, len(c.Profile.Frames))
		}
		stack[i] = &c.Profile.Frames[fi]
	}
	return stack, nil
}

// threadName resolves a display name for a thread: an explicit thread table
// entry wins; otherwise the platform's queue-label fallback applies, based
// on the first queue seen on the thread's samples.
func (c *Chunk) threadName(tid string, samples []Sample) string {
	if meta, ok := c.Profile.ThreadMetadata[tid]; ok && meta.Name != "" {
		return meta.Name
	}
	fallback, ok := queueLabelFallbacks[c.Platform]
	if !ok {
		return ""
	}
	for _, s := range samples {
		if s.QueueAddress == "" {
			continue
		}
		if q, ok := c.Profile.QueueMetadata[s.QueueAddress]; ok && q.Label != "" {
			return fallback(q.Label)
		}
	}
	return ""
}
