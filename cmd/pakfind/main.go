package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"tlj-scene-extractor/internal/config"
	"tlj-scene-extractor/internal/pak"
)

func main() {
	resources := flag.String("resources", "", "Directory holding the *.pak archives (default: auto-detect)")
	out := flag.String("out", "extracted", "Extraction directory")
	extract := flag.Bool("extract", false, "Extract every path that is found")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: pakfind [flags] <logical path>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Config{ExtractDir: *out}
	cfg.Resolve(config.Flags{ResourceDir: *resources})
	if cfg.ResourceDir == "" {
		fmt.Fprintf(os.Stderr, "Error: cannot find the archives. Use -resources or %s.\n", config.ResourceDirEnv)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	pkg, err := pak.OpenDir(cfg.ResourceDir, cfg.ExtractDir, pak.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archives: %v\n", err)
		os.Exit(1)
	}

	missing := 0
	for _, logical := range flag.Args() {
		idx, e, ok := pkg.Lookup(logical)
		if !ok {
			fmt.Printf("%s: not found\n", logical)
			missing++
			continue
		}
		fmt.Printf("%s: %s offset 0x%x size %d\n", logical, idx.Name, e.Offset, e.Size)
		if !*extract {
			continue
		}
		if _, err := pkg.TryExtract(logical); err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting %s: %v\n", logical, err)
			os.Exit(1)
		}
		fmt.Printf("  -> %s\n", pkg.OutputPath(logical))
	}

	if missing > 0 {
		os.Exit(1)
	}
}
