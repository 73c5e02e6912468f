// Package pak reads the sealed ".pak" archives: a directory laid out as an
// implicit trie over reversed-alphabet path codes followed by the raw member
// bytes.
package pak

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tlj-scene-extractor/internal/binreader"
)

// Magic opens every archive header.
const Magic = "tlj_pack0001"

const (
	headerSize = len(Magic) + 12
	entrySize  = 20
)

// ErrBadMagic is returned when a file does not start with Magic.
var ErrBadMagic = errors.New("pak: bad magic")

// Entry is one trie node. A file entry has Size > 0; a branch entry has
// Size == 0 and its children start at Link.
type Entry struct {
	Offset  uint32
	Size    int32
	Link    int32
	Depth   int32 // path length consumed once this entry has matched
	NameRef int32
	Partial string
}

// IsFile reports whether the entry denotes a member file.
func (e Entry) IsFile() bool {
	return e.Size > 0
}

// Index is the decoded directory of one archive.
type Index struct {
	Name    string
	Path    string
	Entries []Entry
	Lengths []int32 // auxiliary length table, unused by lookups
}

// Parse decodes an archive directory from the start of data.
func Parse(data []byte) (*Index, error) {
	r := binreader.New(data)
	if magic := string(r.ReadBytes(len(Magic))); magic != Magic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}
	fileCount := r.ReadU32()
	auxCount := r.ReadU32()
	nameBytes := r.ReadU32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("pak: header: %w", err)
	}
	if int64(fileCount)*entrySize > int64(r.Remaining()) {
		return nil, fmt.Errorf("pak: %d entries exceed %d bytes: %w", fileCount, r.Remaining(), binreader.ErrOutOfRange)
	}

	idx := &Index{Entries: make([]Entry, fileCount)}
	for i := range idx.Entries {
		e := Entry{
			Offset:  r.ReadU32(),
			Size:    r.ReadI32(),
			Link:    r.ReadI32(),
			Depth:   r.ReadI32(),
			NameRef: r.ReadI32(),
		}
		// branch depths are stored one short of the matched length
		if !e.IsFile() {
			e.Depth++
		}
		idx.Entries[i] = e
	}

	raw := r.ReadBytes(int(nameBytes))
	names := make([]byte, len(raw))
	for i, c := range raw {
		names[i] = decodeChar(c)
	}
	idx.Lengths = r.ReadI32Table(int32(auxCount), 0)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("pak: directory: %w", err)
	}

	for i := range idx.Entries {
		idx.Entries[i].Partial = partialName(names, idx.Entries[i].NameRef)
	}
	return idx, nil
}

func partialName(names []byte, ref int32) string {
	if ref < 0 || int(ref) >= len(names) {
		return ""
	}
	end := int(ref)
	for end < len(names) && names[end] != 0 {
		end++
	}
	return string(names[ref:end])
}

// Open reads only the directory part of an archive file.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pak: open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	if _, err := io.ReadFull(f, head); err != nil {
		return nil, fmt.Errorf("pak: read header %s: %w", path, err)
	}
	if string(head[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("%w: %s", ErrBadMagic, path)
	}
	fileCount := int64(binary.LittleEndian.Uint32(head[len(Magic):]))
	auxCount := int64(binary.LittleEndian.Uint32(head[len(Magic)+4:]))
	nameBytes := int64(binary.LittleEndian.Uint32(head[len(Magic)+8:]))
	dirSize := int64(headerSize) + fileCount*entrySize + nameBytes + auxCount*4

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pak: stat %s: %w", path, err)
	}
	if dirSize > info.Size() {
		return nil, fmt.Errorf("pak: directory of %s needs %d bytes, file has %d: %w", path, dirSize, info.Size(), binreader.ErrOutOfRange)
	}

	dir := make([]byte, dirSize)
	if _, err := f.ReadAt(dir, 0); err != nil {
		return nil, fmt.Errorf("pak: read directory %s: %w", path, err)
	}
	idx, err := Parse(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	idx.Path = path
	idx.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return idx, nil
}

// NormalizePath lower-cases p and converts forward slashes to the archive
// separator.
func NormalizePath(p string) string {
	return strings.ReplaceAll(strings.ToLower(p), "/", `\`)
}

// Find resolves a logical path to its file entry.
func (idx *Index) Find(p string) (Entry, bool) {
	p = NormalizePath(p)
	if p == "" {
		return Entry{}, false
	}
	return idx.find(p, 0, 0)
}

func (idx *Index) find(left string, passed int, base int32) (Entry, bool) {
	code := encodeChar(left[0])
	if code < 0 {
		return Entry{}, false
	}
	num := int64(code) + int64(base)
	if num < 0 || num >= int64(len(idx.Entries)) {
		return Entry{}, false
	}
	e := idx.Entries[num]

	prefix := left[:1] + e.Partial
	if !strings.HasPrefix(left, prefix) {
		return Entry{}, false
	}
	passed += len(prefix)
	left = left[len(prefix):]
	if int32(passed) != e.Depth {
		return Entry{}, false
	}

	if e.IsFile() {
		if left != "" {
			return Entry{}, false
		}
		return e, true
	}
	if left == "" {
		return Entry{}, false
	}
	return idx.find(left, passed, e.Link)
}
