package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tlj-scene-extractor/internal/batch"
	"tlj-scene-extractor/internal/bundle"
	"tlj-scene-extractor/internal/config"
	"tlj-scene-extractor/internal/pak"
	"tlj-scene-extractor/internal/scene"
	"tlj-scene-extractor/internal/shark"
	"tlj-scene-extractor/internal/texture"
)

func main() {
	// CLI flags
	configFile := flag.String("config", "", "Path to a JSON or YAML config file")
	resourceDir := flag.String("resources", "", "Directory holding the *.pak archives (default: auto-detect)")
	outputDir := flag.String("output", "", "Output directory (default: meshes)")
	location := flag.String("location", "", "Location to extract (default: japan_streets)")
	format := flag.String("format", "", "Texture format: webp or png (default: webp)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	filter := flag.String("filter", "", "Only process documents whose name contains this")
	debug := flag.Bool("debug", false, "Log at debug level")
	noLights := flag.Bool("no-lights", false, "Do not derive point lights from glow meshes")

	flag.Parse()

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		ResourceDir:   *resourceDir,
		OutputDir:     *outputDir,
		Location:      *location,
		TextureFormat: *format,
		Workers:       *workers,
		NoLights:      *noLights,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := cfg.Level()
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Open archives
	pkg, err := pak.OpenDir(cfg.ResourceDir, cfg.ExtractDir, pak.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening archives: %v\n", err)
		os.Exit(1)
	}
	if len(pkg.Indices()) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no *.pak archives in %s\n", cfg.ResourceDir)
		os.Exit(1)
	}
	if cfg.Manifest != "" {
		n, err := pkg.LoadManifest(cfg.Manifest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: extraction manifest: %v\n", err)
		} else {
			fmt.Printf("Extraction manifest: %d files already on disk\n", n)
		}
	}

	// Location document
	data, found, err := pkg.ReadFile(cfg.LocationDocument())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading location: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Error: location %q not found (%s)\n", cfg.Location, cfg.LocationDocument())
		os.Exit(1)
	}
	root, err := shark.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding location: %v\n", err)
		os.Exit(1)
	}
	index := shark.ParseSceneIndex(root)
	docs := batch.Select(index.Documents, *filter)
	if len(docs) == 0 {
		fmt.Println("No documents to process.")
		os.Exit(0)
	}

	// Bundle
	header, err := bundle.Open(cfg.BundlePath(), bundle.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bundle: %v\n", err)
		os.Exit(1)
	}

	texFormat, err := texture.ParseFormat(cfg.TextureFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	textures := texture.NewExporter(pkg,
		filepath.Join(cfg.OutputDir, "textures", cfg.Location),
		texFormat, texture.WithLogger(logger))

	opts := []scene.Option{scene.WithLogger(logger), scene.WithTextures(textures)}
	if cfg.InferLights() {
		opts = append(opts, scene.WithEnricher(&scene.LightInference{Colors: textures.Cache(), Logger: logger}))
	}
	assembler := scene.NewAssembler(header, opts...)

	locationDir := filepath.Join(cfg.OutputDir, cfg.Location)

	// Print summary
	fmt.Printf("Dreamfall TLJ scene extractor: %s\n", cfg.Location)
	fmt.Printf("Archives: %d, Bundle files: %d, Meshes in bundle: %d\n", len(pkg.Indices()), len(index.BundleFiles), countMeshes(header))
	fmt.Printf("Documents: %d, Workers: %d\n", len(docs), cfg.Workers)
	fmt.Printf("Output: %s\n", locationDir)
	fmt.Println("------------------------------------------------------------")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	results, runErr := batch.Run(ctx, batch.Config{
		Source:    pkg,
		Assembler: assembler,
		OutputDir: locationDir,
		Workers:   cfg.Workers,
		Logger:    logger,
		Progress:  2 * time.Second,
	}, docs)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Interrupted: %v\n", runErr)
	}

	// Count results
	success, meshes, lights := 0, 0, 0
	var failures []batch.Result
	for _, r := range results {
		if r.Success() {
			success++
			meshes += r.Meshes
			lights += r.Lights
		}
		if r.Error != "" {
			failures = append(failures, r)
		}
	}

	fmt.Printf("Scenes: %d/%d (%d meshes, %d lights)\n", success, len(docs), meshes, lights)

	if len(failures) > 0 {
		fmt.Printf("\nFailed (%d):\n", len(failures))
		limit := min(20, len(failures))
		for _, e := range failures[:limit] {
			fmt.Printf("  %s: %s\n", e.Name, e.Error)
		}
	}

	// Write manifests
	manifestPath := filepath.Join(locationDir, "manifest.json")
	if err := batch.WriteManifest(manifestPath, batch.NewManifest(cfg.Location, results)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s\n", manifestPath)
	}
	if cfg.Manifest != "" {
		if err := pkg.SaveManifest(cfg.Manifest); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: extraction manifest write failed: %v\n", err)
		}
	}

	if len(failures) > 0 || runErr != nil {
		os.Exit(1)
	}
}

func countMeshes(h *bundle.Header) int {
	n := 0
	for _, f := range h.Files {
		n += len(f.Meshes)
	}
	return n
}
