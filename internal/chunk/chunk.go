// Package chunk decodes sampled-profile chunks and drives call tree
// construction from them. A chunk carries a frame table, deduplicated
// stacks, and a time-ordered stream of samples for one or more threads.
package chunk

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"flametree/internal/frame"
)

// Sample is one observation of a full call stack at a point in time.
// Timestamps are relative to the chunk start, in nanoseconds, and must be
// non-decreasing across the stream.
type Sample struct {
	StackID      int    `json:"stack_id"`
	ThreadID     string `json:"thread_id"`
	TimestampNS  uint64 `json:"timestamp_ns"`
	QueueAddress string `json:"queue_address,omitempty"`
}

// ThreadMetadata is the per-thread entry of the chunk's thread table.
type ThreadMetadata struct {
	Name string `json:"name"`
}

// QueueMetadata is the per-queue entry of the chunk's queue table, keyed by
// queue address.
type QueueMetadata struct {
	Label string `json:"label"`
}

// Profile is the raw sampled data of a chunk. Stacks hold indices into
// Frames in root-to-leaf order: stack[0] is the outermost caller.
type Profile struct {
	Frames         []frame.Frame             `json:"frames"`
	Stacks         [][]int                   `json:"stacks"`
	Samples        []Sample                  `json:"samples"`
	ThreadMetadata map[string]ThreadMetadata `json:"thread_metadata,omitempty"`
	QueueMetadata  map[string]QueueMetadata  `json:"queue_metadata,omitempty"`
}

// Chunk is one self-contained piece of profiling data as produced by an SDK.
type Chunk struct {
	Platform string  `json:"platform"`
	Profile  Profile `json:"profile"`
}

func Decode(r io.Reader) (*Chunk, error) {
	var c Chunk
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("chunk: failed to decode: %w", err)
	}
	return &c, nil
}

func ReadFile(path string) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunk: failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
