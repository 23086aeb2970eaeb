package chunk

import (
	"errors"
	"strings"
	"testing"

	"flametree/internal/frame"
)

func testChunk() *Chunk {
	return &Chunk{
		Platform: "python",
		Profile: Profile{
			Frames: []frame.Frame{
				{Function: "main"},
				{Function: "work"},
				{Function: "idle"},
			},
			Stacks: [][]int{
				{0, 1}, // main;work
				{0, 2}, // main;idle
			},
			Samples: []Sample{
				{StackID: 0, ThreadID: "1", TimestampNS: 0},
				{StackID: 0, ThreadID: "1", TimestampNS: 10},
				{StackID: 1, ThreadID: "1", TimestampNS: 25},
			},
			ThreadMetadata: map[string]ThreadMetadata{
				"1": {Name: "MainThread"},
			},
		},
	}
}

func TestBuildProfiles_SingleThread(t *testing.T) {
	profiles, err := BuildProfiles(testChunk())
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	p, ok := profiles["1"]
	if !ok {
		t.Fatalf("no profile for thread 1")
	}
	if p.Meta.ThreadName != "MainThread" {
		t.Fatalf("thread name = %q, want MainThread", p.Meta.ThreadName)
	}
	if p.Duration != 25 {
		t.Fatalf("duration = %d, want 25", p.Duration)
	}

	// First sample is zero-width; the remaining two carry 10ns of main;work
	// and 15ns of main;idle.
	if len(p.Samples) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(p.Samples))
	}
	if p.Weights[0] != 10 || p.Weights[1] != 15 {
		t.Fatalf("weights = %v, want [10 15]", p.Weights)
	}
	main := p.Root.Children[0]
	if main.Frame.Function != "main" || main.TotalWeight != 25 {
		t.Fatalf("unexpected root child: %q total=%d", main.Frame.Function, main.TotalWeight)
	}
	if len(main.Children) != 2 {
		t.Fatalf("expected work and idle under main, got %d children", len(main.Children))
	}
}

func TestBuildProfiles_SharedFrameAggregates(t *testing.T) {
	c := testChunk()
	if _, err := BuildProfiles(c); err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}

	// Both stacks route through the frame table's "main" entry; its
	// inclusive weight must cover the whole sampled range.
	if got := c.Profile.Frames[0].TotalWeight; got != 25 {
		t.Fatalf("main frame totalWeight = %d, want 25", got)
	}
	if got := c.Profile.Frames[1].SelfWeight; got != 10 {
		t.Fatalf("work frame selfWeight = %d, want 10", got)
	}
}

func TestBuildProfiles_DegenerateThreadIsEmpty(t *testing.T) {
	c := testChunk()
	c.Profile.Samples = c.Profile.Samples[:1]

	profiles, err := BuildProfiles(c)
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	p := profiles["1"]
	if len(p.Samples) != 0 || len(p.Root.Children) != 0 || p.Duration != 0 {
		t.Fatalf("single-sample thread did not yield the empty profile: samples=%d children=%d duration=%d",
			len(p.Samples), len(p.Root.Children), p.Duration)
	}
}

func TestBuildProfiles_OutOfOrderRejected(t *testing.T) {
	c := testChunk()
	c.Profile.Samples[2].TimestampNS = 5

	_, err := BuildProfiles(c)
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("error = %v, want ErrOutOfOrder", err)
	}
}

func TestBuildProfiles_UnknownFrameIsFatal(t *testing.T) {
	c := testChunk()
	c.Profile.Stacks[0] = []int{0, 99}

	profiles, err := BuildProfiles(c)
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("error = %v, want ErrUnknownFrame", err)
	}
	if profiles != nil {
		t.Fatalf("expected no partial result, got %d profiles", len(profiles))
	}
}

func TestBuildProfiles_UnknownStackIsFatal(t *testing.T) {
	c := testChunk()
	c.Profile.Samples[1].StackID = 42

	_, err := BuildProfiles(c)
	if !errors.Is(err, ErrUnknownStack) {
		t.Fatalf("error = %v, want ErrUnknownStack", err)
	}
}

func TestBuildProfiles_MultipleThreads(t *testing.T) {
	c := testChunk()
	c.Profile.Samples = []Sample{
		{StackID: 0, ThreadID: "1", TimestampNS: 0},
		{StackID: 1, ThreadID: "2", TimestampNS: 2},
		{StackID: 0, ThreadID: "1", TimestampNS: 10},
		{StackID: 1, ThreadID: "2", TimestampNS: 12},
	}

	profiles, err := BuildProfiles(c)
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles["1"].Duration != 10 || profiles["2"].Duration != 10 {
		t.Fatalf("durations = %d, %d, want 10, 10", profiles["1"].Duration, profiles["2"].Duration)
	}
}

func TestThreadName_CocoaQueueFallback(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		meta     map[string]ThreadMetadata
		queues   map[string]QueueMetadata
		sample   Sample
		want     string
	}{
		{
			name:     "thread table entry wins",
			platform: "cocoa",
			meta:     map[string]ThreadMetadata{"1": {Name: "com.example.worker"}},
			queues:   map[string]QueueMetadata{"0xdead": {Label: "some.queue"}},
			sample:   Sample{ThreadID: "1", QueueAddress: "0xdead"},
			want:     "com.example.worker",
		},
		{
			name:     "queue label fallback",
			platform: "cocoa",
			queues:   map[string]QueueMetadata{"0xdead": {Label: "com.example.io"}},
			sample:   Sample{ThreadID: "1", QueueAddress: "0xdead"},
			want:     "com.example.io",
		},
		{
			name:     "reserved main thread queue is ignored",
			platform: "cocoa",
			queues:   map[string]QueueMetadata{"0xdead": {Label: "com.apple.main-thread"}},
			sample:   Sample{ThreadID: "1", QueueAddress: "0xdead"},
			want:     "",
		},
		{
			name:     "no fallback on other platforms",
			platform: "python",
			queues:   map[string]QueueMetadata{"0xdead": {Label: "com.example.io"}},
			sample:   Sample{ThreadID: "1", QueueAddress: "0xdead"},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Chunk{
				Platform: tt.platform,
				Profile: Profile{
					ThreadMetadata: tt.meta,
					QueueMetadata:  tt.queues,
				},
			}
			got := c.threadName(tt.sample.ThreadID, []Sample{tt.sample})
			if got != tt.want {
				t.Fatalf("threadName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	input := `{
		"platform": "cocoa",
		"profile": {
			"frames": [{"function": "main", "filename": "main.m", "lineno": 12}],
			"stacks": [[0]],
			"samples": [
				{"stack_id": 0, "thread_id": "259", "timestamp_ns": 1000, "queue_address": "0x1"}
			],
			"thread_metadata": {"259": {"name": "main"}},
			"queue_metadata": {"0x1": {"label": "com.apple.main-thread"}}
		}
	}`

	c, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Platform != "cocoa" {
		t.Fatalf("platform = %q", c.Platform)
	}
	if len(c.Profile.Frames) != 1 || c.Profile.Frames[0].Line != 12 {
		t.Fatalf("frames not decoded: %+v", c.Profile.Frames)
	}
	if c.Profile.Samples[0].QueueAddress != "0x1" {
		t.Fatalf("sample not decoded: %+v", c.Profile.Samples[0])
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode(strings.NewReader("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
