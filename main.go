package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"

	"flametree/internal/chunk"
	"flametree/internal/exporter"
	"flametree/internal/pprof"
)

func main() {
	outDir := flag.String("out", ".", "directory to write the converted profiles to")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-out dir] <chunk.json>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	path := flag.Arg(0)

	c, err := chunk.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read chunk", "path", path, "error", err)
		os.Exit(1)
	}

	profiles, err := chunk.BuildProfiles(c)
	if err != nil {
		slog.Error("Failed to build call trees from chunk", "path", path, "error", err)
		os.Exit(1)
	}
	slog.Info("Built call trees", "threads", len(profiles), "platform", c.Platform)

	base := filepath.Join(*outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	folded := exporter.BuildFoldedStacks(profiles)
	if err := exporter.WriteFoldedStacksToFile(folded, base+".folded"); err != nil {
		slog.Error("Failed to write folded stacks", "error", err)
		os.Exit(1)
	}

	speedscope := exporter.BuildSpeedscope(profiles)
	if err := exporter.WriteSpeedscopeToFile(speedscope, base+".speedscope.json"); err != nil {
		slog.Error("Failed to write speedscope output", "error", err)
		os.Exit(1)
	}

	pprofProfile, err := pprof.BuildPprofProfile(profiles)
	if err != nil {
		slog.Error("Failed to build pprof profile", "error", err)
		os.Exit(1)
	}
	f, err := os.Create(base + ".pb.gz")
	if err != nil {
		slog.Error("Failed to create pprof output file", "error", err)
		os.Exit(1)
	}
	if err := pprof.WriteProfileGzip(pprofProfile, f); err != nil {
		f.Close()
		slog.Error("Failed to write pprof profile", "error", err)
		os.Exit(1)
	}
	f.Close()

	otlp := exporter.BuildOltpProfile(profiles, func() uint64 { return uint64(time.Now().UnixNano()) })
	data, err := proto.Marshal(otlp)
	if err != nil {
		slog.Error("Failed to marshal OTLP profile", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(base+".otlp.pb", data, 0o644); err != nil {
		slog.Error("Failed to write OTLP profile", "error", err)
		os.Exit(1)
	}

	slog.Info("Wrote converted profiles", "base", base)
}
