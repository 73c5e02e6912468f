package pak

import (
	_ "crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// Record describes one materialised archive member.
type Record struct {
	Path   string        `json:"path"`
	Size   int64         `json:"size"`
	Digest digest.Digest `json:"digest"`
}

// Package is a set of archives sharing one extraction directory. Extraction
// is memoised by output path; concurrent TryExtract calls for the same path
// share a single copy.
type Package struct {
	indices []*Index
	outDir  string
	logger  *slog.Logger

	mu        sync.Mutex
	extracted map[string]Record
	group     singleflight.Group

	// copyMember is replaced in tests to observe I/O.
	copyMember func(idx *Index, e Entry, dst string) (Record, error)
}

// Option configures a Package.
type Option func(*Package)

// WithLogger sets the logger used for extraction events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Package) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a Package over already-parsed indices. Archives are searched in
// the order given.
func New(outDir string, indices []*Index, opts ...Option) *Package {
	p := &Package{
		indices:   indices,
		outDir:    outDir,
		logger:    slog.New(slog.DiscardHandler),
		extracted: make(map[string]Record),
	}
	p.copyMember = p.extract
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OpenDir parses every *.pak file in dir, in name order.
func OpenDir(dir, outDir string, opts ...Option) (*Package, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pak"))
	if err != nil {
		return nil, fmt.Errorf("pak: scan %s: %w", dir, err)
	}
	sort.Strings(matches)

	indices := make([]*Index, 0, len(matches))
	for _, m := range matches {
		idx, err := Open(m)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return New(outDir, indices, opts...), nil
}

// Indices returns the archives in search order.
func (p *Package) Indices() []*Index {
	return p.indices
}

// OutputPath returns where a logical path is materialised.
func (p *Package) OutputPath(logical string) string {
	return filepath.Join(p.outDir, filepath.FromSlash(outputKey(logical)))
}

// outputKey normalises a logical path into the memoisation key. The key is
// rooted at the output directory, so ".." segments cannot climb out of it.
func outputKey(logical string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(logical, `\`, "/")), "/")
}

// Lookup finds the archive and entry holding logical.
func (p *Package) Lookup(logical string) (*Index, Entry, bool) {
	for _, idx := range p.indices {
		if e, ok := idx.Find(logical); ok {
			return idx, e, true
		}
	}
	return nil, Entry{}, false
}

// Extracted reports whether logical has already been materialised.
func (p *Package) Extracted(logical string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.extracted[outputKey(logical)]
	return ok
}

// TryExtract materialises logical under the output directory. A path that no
// archive contains is reported as found == false with a nil error; err is
// only set for I/O failures. Repeated calls for the same path do no I/O.
func (p *Package) TryExtract(logical string) (bool, error) {
	key := outputKey(logical)
	if p.Extracted(key) {
		return true, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if p.Extracted(key) {
			return true, nil
		}
		p.logger.Debug("try to extract", slog.String("path", NormalizePath(key)))

		idx, e, ok := p.Lookup(key)
		if !ok {
			p.logger.Warn("not found in any archive", slog.String("path", NormalizePath(key)))
			return false, nil
		}
		rec, err := p.copyMember(idx, e, p.OutputPath(key))
		if err != nil {
			return false, err
		}
		rec.Path = key

		p.mu.Lock()
		p.extracted[key] = rec
		p.mu.Unlock()
		p.logger.Debug("extracted",
			slog.String("path", key),
			slog.String("archive", idx.Name),
			slog.String("digest", rec.Digest.String()))
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ReadFile extracts logical if needed and returns its bytes.
func (p *Package) ReadFile(logical string) ([]byte, bool, error) {
	found, err := p.TryExtract(logical)
	if err != nil || !found {
		return nil, found, err
	}
	data, err := os.ReadFile(p.OutputPath(logical))
	if err != nil {
		return nil, true, fmt.Errorf("pak: read %s: %w", logical, err)
	}
	return data, true, nil
}

func (p *Package) extract(idx *Index, e Entry, dst string) (Record, error) {
	src, err := os.Open(idx.Path)
	if err != nil {
		return Record{}, fmt.Errorf("pak: open %s: %w", idx.Path, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Record{}, fmt.Errorf("pak: create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return Record{}, fmt.Errorf("pak: create %s: %w", dst, err)
	}

	digester := digest.Canonical.Digester()
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), io.NewSectionReader(src, int64(e.Offset), int64(e.Size)))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Record{}, fmt.Errorf("pak: extract to %s: %w", dst, err)
	}
	if n != int64(e.Size) {
		return Record{}, fmt.Errorf("pak: extract to %s: short member, %d of %d bytes", dst, n, e.Size)
	}
	return Record{Size: n, Digest: digester.Digest()}, nil
}
