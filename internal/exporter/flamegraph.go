package exporter

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"flametree/internal/calltree"
)

// BuildFoldedStacks aggregates the timelines of all thread profiles into
// the folded-stacks format: one entry per distinct root-to-leaf call path,
// weights summed.
func BuildFoldedStacks(profiles map[string]*calltree.Profile) map[string]uint64 {
	agg := make(map[string]uint64)
	for _, p := range profiles {
		for i, node := range p.Samples {
			agg[foldedKey(node)] += p.Weights[i]
		}
	}
	return agg
}

// foldedKey renders the call path ending at node, root-first, frames joined
// by semicolons.
func foldedKey(node *calltree.Node) string {
	var names []string
	for n := node; n != nil && n.Parent != nil; n = n.Parent {
		names = append(names, escapeFoldedName(n.Frame.DisplayName()))
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ";")
}

func escapeFoldedName(name string) string {
	// semicolons separate frames and newlines separate lines. Replace them with safe characters.
	name = strings.ReplaceAll(name, ";", "_")  // frame separator in folded stacks format
	name = strings.ReplaceAll(name, "\n", " ") // line separator, duh
	name = strings.TrimSpace(name)
	if name == "" {
		return "<unknown>"
	}
	return name
}

func WriteFoldedStacksToFile(agg map[string]uint64, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	type kv struct {
		k string
		v uint64
	}
	var items []kv
	for k, v := range agg {
		items = append(items, kv{k, v})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].v == items[j].v {
			return items[i].k < items[j].k
		}
		return items[i].v > items[j].v
	})

	for _, it := range items {
		if _, err := fmt.Fprintf(f, "%s %d\n", it.k, it.v); err != nil {
			return err
		}
	}
	return nil
}
