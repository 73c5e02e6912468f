package texture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/anthonynsimon/bild/imgio"
	"golang.org/x/sync/singleflight"

	"tlj-scene-extractor/internal/bundle"
)

// Format is the image encoding used for exported textures.
type Format string

const (
	FormatWebP Format = "webp"
	FormatPNG  Format = "png"
)

// ParseFormat validates a configured format name. Empty means WebP.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatWebP:
		return FormatWebP, nil
	case FormatPNG:
		return FormatPNG, nil
	}
	return "", fmt.Errorf("texture: unknown format %q", s)
}

// ErrNotFound is returned when no archive holds a texture.
var ErrNotFound = errors.New("texture: not found in any archive")

// Extractor materialises archive members on disk. *pak.Package implements it.
type Extractor interface {
	TryExtract(logical string) (bool, error)
	OutputPath(logical string) string
}

// Exporter converts mesh part textures into image files under one directory.
// It is safe for concurrent use; each output file is written once.
type Exporter struct {
	src    Extractor
	dir    string
	format Format
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithLogger sets the logger used for export failures.
func WithLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCache shares a decoded-image cache, e.g. with light inference.
func WithCache(c *Cache) ExporterOption {
	return func(e *Exporter) {
		if c != nil {
			e.cache = c
		}
	}
}

// NewExporter writes textures extracted through src into dir.
func NewExporter(src Extractor, dir string, format Format, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		src:    src,
		dir:    dir,
		format: format,
		cache:  NewCache(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache returns the decoded-image cache of exported files.
func (e *Exporter) Cache() *Cache {
	return e.cache
}

// OutputPath returns where the texture named name is exported.
func (e *Exporter) OutputPath(name string) string {
	clean := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, `\`, "/")), "/")
	clean = strings.TrimSuffix(clean, path.Ext(clean)) + "." + string(e.format)
	return filepath.Join(e.dir, filepath.FromSlash(clean))
}

// Export extracts, decodes and re-encodes one texture. An existing output
// file is reused as is.
func (e *Exporter) Export(name string) (string, error) {
	dst := e.OutputPath(name)
	_, err, _ := e.group.Do(dst, func() (any, error) {
		if _, err := os.Stat(dst); err == nil {
			return nil, nil
		}
		found, err := e.src.TryExtract(name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		img, err := Load(e.src.OutputPath(name))
		if err != nil {
			return nil, err
		}
		if err := e.encode(img, dst); err != nil {
			return nil, err
		}
		e.cache.Put(dst, img)
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func (e *Exporter) encode(img image.Image, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("texture: create %s: %w", filepath.Dir(dst), err)
	}
	if e.format == FormatPNG {
		if err := imgio.Save(dst, img, imgio.PNGEncoder()); err != nil {
			return fmt.Errorf("texture: write %s: %w", dst, err)
		}
		return nil
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("texture: create %s: %w", dst, err)
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("texture: webp encode %s: %w", dst, err)
	}
	return f.Close()
}

// ProcessPart replaces the texture names of part with exported file paths
// and records an alpha mask for transparent materials. Textures that cannot
// be exported are logged and dropped.
func (e *Exporter) ProcessPart(part *bundle.MeshPart) error {
	out := make([]string, 0, len(part.Textures))
	for _, name := range part.Textures {
		if name == "" {
			continue
		}
		dst, err := e.Export(name)
		if err != nil {
			e.logger.Error("texture not exported", slog.String("texture", name), slog.Any("err", err))
			continue
		}
		out = append(out, dst)

		mask, ok := AlphaMaskPath(dst)
		if !ok {
			continue
		}
		if err := e.writeMask(dst, mask); err != nil {
			e.logger.Error("alpha mask not written", slog.String("texture", name), slog.Any("err", err))
			continue
		}
		part.AlphaTexture = mask
	}
	part.Textures = out
	return nil
}

func (e *Exporter) writeMask(src, mask string) error {
	_, err, _ := e.group.Do(mask, func() (any, error) {
		if _, err := os.Stat(mask); err == nil {
			return nil, nil
		}
		img, err := e.cache.Get(src)
		if err != nil {
			return nil, err
		}
		return nil, WriteAlphaMask(img, mask)
	})
	return err
}
