package exporter

import (
	"sort"

	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"

	"flametree/internal/calltree"
)

type NowFunc func() uint64 // produces unix nsec

// BuildOltpProfile renders the built thread profiles as an OTLP profiles
// payload: one profile per thread, sharing one dictionary of strings,
// functions, locations and stacks. Index 0 of every dictionary table is the
// empty sentinel entry the format reserves.
func BuildOltpProfile(profiles map[string]*calltree.Profile, now NowFunc) *profilespb.ProfilesData {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	defaultMappingIdx := 0
	locIndexByKey := map[string]int32{}

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "cpu"),
		UnitStrindex: strIndex(&stringTable, "nanoseconds"),
	}

	locationFor := func(n *calltree.Node) int32 {
		key := n.Frame.Key()
		if idx, ok := locIndexByKey[key]; ok {
			return idx
		}
		funcNameIdx := strIndex(&stringTable, n.Frame.DisplayName())
		fn := &profilespb.Function{
			NameStrindex:       funcNameIdx,
			SystemNameStrindex: funcNameIdx,
			FilenameStrindex:   strIndex(&stringTable, n.Frame.File),
		}
		functionTable = append(functionTable, fn)
		fnIdx := int32(len(functionTable) - 1)

		loc := &profilespb.Location{
			MappingIndex: int32(defaultMappingIdx),
			Lines: []*profilespb.Line{
				{
					FunctionIndex: fnIdx,
					Line:          int64(n.Frame.Line),
				},
			},
		}
		locationTable = append(locationTable, loc)
		locIdx := int32(len(locationTable) - 1)
		locIndexByKey[key] = locIdx
		return locIdx
	}

	// OTLP stacks are leaf-first; our parent walk already yields that order.
	buildStack := func(terminal *calltree.Node) int32 {
		var locIndices []int32
		for n := terminal; n != nil && n.Parent != nil; n = n.Parent {
			locIndices = append(locIndices, locationFor(n))
		}
		stack := &profilespb.Stack{LocationIndices: locIndices}
		stackTable = append(stackTable, stack)
		return int32(len(stackTable) - 1)
	}

	tids := make([]string, 0, len(profiles))
	for tid := range profiles {
		tids = append(tids, tid)
	}
	sort.Strings(tids)

	pbProfiles := make([]*profilespb.Profile, 0, len(profiles))
	for _, tid := range tids {
		p := profiles[tid]
		profileSamples := make([]*profilespb.Sample, 0, len(p.Samples))
		for i, node := range p.Samples {
			pbSample := &profilespb.Sample{
				StackIndex:       buildStack(node),
				Values:           []int64{int64(p.Weights[i])},
				AttributeIndices: []int32{},
				LinkIndex:        0,
			}
			profileSamples = append(profileSamples, pbSample)
		}

		pbProfiles = append(pbProfiles, &profilespb.Profile{
			TimeUnixNano: nowNsec,
			DurationNano: p.Duration,
			SampleType:   sampleType,
			Samples:      profileSamples,
		})
	}

	resource := &resourceV1.Resource{}
	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: resource,
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope: &v1.InstrumentationScope{
					Name:    "flametree",
					Version: "v1",
				},
				Profiles: pbProfiles,
			},
		},
	}

	dictionary := &profilespb.ProfilesDictionary{
		MappingTable:  mappingTable,
		LocationTable: locationTable,
		FunctionTable: functionTable,
		StackTable:    stackTable,
		StringTable:   stringTable,
	}

	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
