package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tlj-scene-extractor/internal/bundle"
)

func main() {
	meshRef := flag.String("mesh", "", "Resolve one mesh, given as <file>:<mesh>")
	list := flag.Bool("list", false, "List every file entry and its meshes")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bundleinfo [flags] <bundle.bun>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	h, err := bundle.Open(flag.Arg(0), bundle.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	meshes := 0
	for _, f := range h.Files {
		meshes += len(f.Meshes)
	}
	fmt.Printf("Bundle: %s\n", flag.Arg(0))
	fmt.Printf("Textures: %d, Data blocks: %d, Stream formats: %d\n", len(h.Textures), len(h.DataBlocks), len(h.StreamFormats))
	fmt.Printf("Files: %d, Meshes: %d\n", len(h.Files), meshes)

	if *list {
		fmt.Println("------------------------------------------------------------")
		for _, f := range h.Files {
			fmt.Printf("%s (%d)\n", f.Name, len(f.Meshes))
			for _, m := range f.Meshes {
				fmt.Printf("  %-40s block %d\n", m.Name, m.DataIndex)
			}
		}
	}

	if *meshRef == "" {
		return
	}
	file, name, ok := strings.Cut(*meshRef, ":")
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: -mesh wants <file>:<mesh>, got %q\n", *meshRef)
		os.Exit(2)
	}

	m, err := h.ResolveMesh(file, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("------------------------------------------------------------")
	if m == nil {
		fmt.Printf("%s: no geometry\n", *meshRef)
		return
	}
	fmt.Printf("Mesh: %s (smooth %t, rescale %g)\n", m.Name, m.Smooth, m.Rescale)
	fmt.Printf("Vertices: %d, Triangles: %d, Parts: %d\n", len(m.Vertices), len(m.Indices)/3, len(m.Parts))
	for i, p := range m.Parts {
		fmt.Printf("  part %d: indices [%d,%d) vertices [%d,%d) textures %s\n",
			i, p.IndexInterval[0], p.IndexInterval[1], p.VertexInterval[0], p.VertexInterval[1],
			strings.Join(p.Textures, ", "))
	}
}
