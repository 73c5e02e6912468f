package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tlj-scene-extractor/internal/scene"
	"tlj-scene-extractor/internal/shark"
)

// animPrefix marks animation-only documents, which carry no geometry.
const animPrefix = "anim"

// Source reads scene documents out of the archives. *pak.Package implements it.
type Source interface {
	ReadFile(logical string) ([]byte, bool, error)
}

// Config holds all shared resources for a batch run.
type Config struct {
	Source    Source
	Assembler *scene.Assembler
	OutputDir string
	Workers   int
	Logger    *slog.Logger

	// Progress is the interval between progress log lines; zero disables them.
	Progress time.Duration
}

// Result holds the outcome of processing one document.
type Result struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Meshes  int    `json:"meshes"`
	Lights  int    `json:"lights"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success reports whether the document produced a scene.
func (r Result) Success() bool {
	return r.Error == "" && r.Summary != ""
}

// Select drops animation documents and, when filter is set, documents whose
// name does not contain it.
func Select(docs []shark.Document, filter string) []shark.Document {
	var out []shark.Document
	for _, d := range docs {
		if strings.HasPrefix(d.Filename, animPrefix) {
			continue
		}
		if filter != "" && !strings.Contains(d.Filename, filter) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Run processes all documents using a bounded worker pool. A failing document
// is reported in its Result and never stops the others; only cancellation of
// ctx ends the run early.
func Run(ctx context.Context, cfg Config, docs []shark.Document) ([]Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	total := len(docs)
	results := make([]Result, total)
	var processed atomic.Int64

	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	defer close(done)
	if cfg.Progress > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Progress)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if p := processed.Load(); p > 0 {
						rate := float64(p) / time.Since(start).Seconds()
						logger.Info("progress", slog.Int64("done", p), slog.Int("total", total), slog.Float64("docs_per_sec", rate))
					}
				}
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = processDocument(cfg, logger, docs[i])
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func processDocument(cfg Config, logger *slog.Logger, doc shark.Document) Result {
	res := Result{Name: doc.Filename, Path: doc.Path}
	fail := func(err error) Result {
		logger.Error("document skipped", slog.String("document", doc.Path), slog.Any("err", err))
		res.Error = err.Error()
		return res
	}

	data, found, err := cfg.Source.ReadFile(doc.Path)
	if err != nil {
		return fail(err)
	}
	if !found {
		return fail(fmt.Errorf("batch: %s not found in any archive", doc.Path))
	}

	tree, err := shark.Parse(data)
	if err != nil {
		return fail(fmt.Errorf("batch: %s: %w", doc.Path, err))
	}
	root, err := cfg.Assembler.Assemble(tree, doc.Path)
	if err != nil {
		return fail(err)
	}
	if root == nil {
		logger.Warn("document not parsed", slog.String("document", doc.Filename))
		return res
	}
	res.Meshes = root.NumMeshes()
	res.Lights = root.NumLights()

	res.Summary = doc.Filename + ".json"
	if err := writeJSON(filepath.Join(cfg.OutputDir, res.Summary), scene.Summarize(root)); err != nil {
		res.Summary = ""
		return fail(err)
	}
	logger.Info("document parsed",
		slog.String("document", doc.Filename),
		slog.Int("meshes", res.Meshes),
		slog.Int("lights", res.Lights))
	return res
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("batch: create %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, data, 0644)
}
