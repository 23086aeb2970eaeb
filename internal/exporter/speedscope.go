package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"flametree/internal/calltree"
)

type (
	SpeedscopeFrame struct {
		Name  string `json:"name"`
		Image string `json:"image,omitempty"`
		Path  string `json:"file,omitempty"`
		Line  uint32 `json:"line,omitempty"`
	}

	// SampledProfile is one thread's timeline: Samples holds per-entry
	// frame index lists (root-first) into the shared frame table, Weights
	// the matching durations.
	SampledProfile struct {
		EndValue   uint64   `json:"endValue"`
		Name       string   `json:"name"`
		Samples    [][]int  `json:"samples"`
		StartValue uint64   `json:"startValue"`
		ThreadID   string   `json:"threadID"`
		Type       string   `json:"type"`
		Unit       string   `json:"unit"`
		Weights    []uint64 `json:"weights"`
	}

	SpeedscopeOutput struct {
		Shared   SharedData       `json:"shared"`
		Profiles []SampledProfile `json:"profiles"`
	}

	SharedData struct {
		Frames []SpeedscopeFrame `json:"frames"`
	}
)

const profileTypeSampled = "sampled"

// BuildSpeedscope renders the built profiles as a speedscope document, one
// sampled profile per thread sharing a single interned frame table. Threads
// are emitted in ID order for deterministic output.
func BuildSpeedscope(profiles map[string]*calltree.Profile) SpeedscopeOutput {
	var out SpeedscopeOutput
	frameIndex := make(map[string]int)

	tids := make([]string, 0, len(profiles))
	for tid := range profiles {
		tids = append(tids, tid)
	}
	sort.Strings(tids)

	for _, tid := range tids {
		p := profiles[tid]
		sp := SampledProfile{
			Name:     p.Meta.ThreadName,
			ThreadID: p.Meta.ThreadID,
			Type:     profileTypeSampled,
			Unit:     p.Meta.Unit,
			Samples:  make([][]int, 0, len(p.Samples)),
			Weights:  p.Weights,
		}
		for _, node := range p.Samples {
			// parent walk yields leaf-first, speedscope wants root-first
			var path []*calltree.Node
			for n := node; n != nil && n.Parent != nil; n = n.Parent {
				path = append(path, n)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}

			indices := make([]int, 0, len(path))
			for _, n := range path {
				key := n.Frame.Key()
				idx, ok := frameIndex[key]
				if !ok {
					idx = len(out.Shared.Frames)
					frameIndex[key] = idx
					out.Shared.Frames = append(out.Shared.Frames, SpeedscopeFrame{
						Name:  n.Frame.DisplayName(),
						Image: n.Frame.Module,
						Path:  n.Frame.File,
						Line:  n.Frame.Line,
					})
				}
				indices = append(indices, idx)
			}
			sp.Samples = append(sp.Samples, indices)
		}
		sp.EndValue = p.Duration
		out.Profiles = append(out.Profiles, sp)
	}
	return out
}

func WriteSpeedscopeToFile(out SpeedscopeOutput, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("exporter: failed to encode speedscope output: %w", err)
	}
	return nil
}
