package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"tlj-scene-extractor/internal/bundle"
	"tlj-scene-extractor/internal/pak"
	"tlj-scene-extractor/internal/scene"
	"tlj-scene-extractor/internal/shark"
)

func main() {
	resources := flag.String("resources", "", "Read the document from the archives in this directory instead of the file system")
	extractDir := flag.String("extract", "extracted", "Extraction directory used with -resources")
	index := flag.Bool("index", false, "Print the scene documents and bundle files a location document loads")
	bundlePath := flag.String("bundle", "", "Assemble the document against this bundle and print the scene graph")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: sharkdump [flags] <document>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	name := flag.Arg(0)

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var data []byte
	if *resources != "" {
		pkg, err := pak.OpenDir(*resources, *extractDir, pak.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening archives: %v\n", err)
			os.Exit(1)
		}
		var found bool
		data, found, err = pkg.ReadFile(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Fprintf(os.Stderr, "Error: %s not found in any archive\n", name)
			os.Exit(1)
		}
	} else {
		var err error
		data, err = os.ReadFile(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	root, err := shark.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", name, err)
		os.Exit(1)
	}

	switch {
	case *index:
		idx := shark.ParseSceneIndex(root)
		fmt.Printf("Documents (%d):\n", len(idx.Documents))
		for _, d := range idx.Documents {
			fmt.Printf("  %-32s %s\n", d.Filename, d.Path)
		}
		fmt.Printf("Bundle files (%d):\n", len(idx.BundleFiles))
		for _, f := range idx.BundleFiles {
			fmt.Printf("  %s\n", f)
		}
	case *bundlePath != "":
		header, err := bundle.Open(*bundlePath, bundle.WithLogger(logger))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening bundle: %v\n", err)
			os.Exit(1)
		}
		node, err := scene.NewAssembler(header, scene.WithLogger(logger)).Assemble(root, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error assembling %s: %v\n", name, err)
			os.Exit(1)
		}
		if node == nil {
			fmt.Println("No scene root.")
			return
		}
		scene.Fprint(os.Stdout, node)
		fmt.Println("------------------------------------------------------------")
		fmt.Printf("Meshes: %d\n", node.NumMeshes())
	default:
		shark.Fprint(os.Stdout, root)
	}
}
