package pak

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

type manifestFile struct {
	Files []Record `json:"files"`
}

// Records returns every extracted member, sorted by path.
func (p *Package) Records() []Record {
	p.mu.Lock()
	out := make([]Record, 0, len(p.extracted))
	for _, r := range p.extracted {
		out = append(out, r)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SaveManifest persists the extracted set as JSON.
func (p *Package) SaveManifest(path string) error {
	data, err := json.MarshalIndent(manifestFile{Files: p.Records()}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("pak: manifest dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadManifest marks the members listed in a saved manifest as extracted,
// skipping any whose output file is gone or has a different size. A missing
// manifest is not an error. It returns the number of members restored.
func (p *Package) LoadManifest(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pak: read manifest %s: %w", path, err)
	}
	var m manifestFile
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("pak: parse manifest %s: %w", path, err)
	}

	restored := 0
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rec := range m.Files {
		key := outputKey(rec.Path)
		info, err := os.Stat(filepath.Join(p.outDir, filepath.FromSlash(key)))
		if err != nil || info.Size() != rec.Size {
			continue
		}
		rec.Path = key
		p.extracted[key] = rec
		restored++
	}
	return restored, nil
}
