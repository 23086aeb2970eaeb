package pprof

import (
	"compress/gzip"
	"io"
	"sort"

	"github.com/google/pprof/profile"

	"flametree/internal/calltree"
)

// BuildPprofProfile converts built thread profiles into a single pprof
// profile: one pprof sample per timeline entry, labelled with its thread,
// with functions and locations interned across threads.
func BuildPprofProfile(profiles map[string]*calltree.Profile) (*profile.Profile, error) {
	if len(profiles) == 0 {
		p := &profile.Profile{}
		return p, nil
	}

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "cpu", Unit: "nanoseconds"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
	}

	funcs := map[string]*profile.Function{}
	locMap := map[string]*profile.Location{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(n *calltree.Node) *profile.Function {
		key := n.Frame.Key()
		if f, ok := funcs[key]; ok {
			return f
		}
		fn := &profile.Function{
			ID:       nextFuncID,
			Name:     n.Frame.DisplayName(),
			Filename: n.Frame.File,
		}
		nextFuncID++
		funcs[key] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	addLocationFor := func(n *calltree.Node) *profile.Location {
		key := n.Frame.Key()
		if loc, ok := locMap[key]; ok {
			return loc
		}
		fn := addFunction(n)
		loc := &profile.Location{
			ID:   nextLocID,
			Line: []profile.Line{{Function: fn, Line: int64(n.Frame.Line)}},
		}
		nextLocID++
		locMap[key] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	tids := make([]string, 0, len(profiles))
	for tid := range profiles {
		tids = append(tids, tid)
	}
	sort.Strings(tids)

	var totalDuration uint64
	for _, tid := range tids {
		tp := profiles[tid]
		for i, node := range tp.Samples {
			// pprof assumes stacks are in leaf-to-root order, i.e. locs[0] is the leaf (innermost)
			var locs []*profile.Location
			for n := node; n != nil && n.Parent != nil; n = n.Parent {
				locs = append(locs, addLocationFor(n))
			}

			pprofSample := &profile.Sample{
				Value:    []int64{int64(tp.Weights[i])},
				Location: locs,
				Label: map[string][]string{
					"thread_id":   {tp.Meta.ThreadID},
					"thread_name": {tp.Meta.ThreadName},
				},
				NumLabel: map[string][]int64{},
			}
			p.Sample = append(p.Sample, pprofSample)
		}
		if tp.Duration > totalDuration {
			totalDuration = tp.Duration
		}
	}
	p.DurationNanos = int64(totalDuration)

	return p, nil
}

func WriteProfileGzip(p *profile.Profile, w io.Writer) error {
	gw := gzip.NewWriter(w)
	defer gw.Close()
	return p.Write(gw)
}
