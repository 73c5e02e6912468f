// Package bundle parses ".bun" geometry bundles: a texture-name table, raw
// vertex data blocks and a directory of files, meshes and mesh parts reached
// through offsets relative to a zero origin.
package bundle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"tlj-scene-extractor/internal/binreader"
)

var (
	// ErrStrideMismatch is returned when a data block does not agree with the
	// stream format and vertex count of the part that references it.
	ErrStrideMismatch = errors.New("bundle: vertex stride mismatch")

	// ErrBadFormatIndex is returned when a part's format field decodes to an
	// index outside the stream-format table.
	ErrBadFormatIndex = errors.New("bundle: stream format index out of range")
)

const (
	fileNameSize     = 0x80
	meshPartsOffset  = 0x54 // numParts inside the mesh header
	meshPartTable    = 0x58 // first part offset after the mesh header
	partFormatOffset = 0x50 // formatIdx inside the part header
	partAnimSkip     = 0x6c // from after usage to numAnim
	channelCount     = 16
)

// DataBlock is one raw vertex buffer. Start is absolute.
type DataBlock struct {
	Stride int32
	Length int32
	Start  int
}

// StreamFormat describes the interleaved layout of a data block.
type StreamFormat struct {
	WordSize int32 // 32-bit words per vertex
	Channels [channelCount]int32
	Streams  int32
}

// MeshEntry is a named mesh inside a file entry. DataIndex is the first data
// block owned by the mesh.
type MeshEntry struct {
	PosStart  uint32
	Name      string
	DataIndex int
}

// FileEntry groups the meshes exported from one source scene file.
type FileEntry struct {
	PosStart uint32
	Name     string
	Meshes   []MeshEntry
}

// Mesh returns the mesh entry called name.
func (f *FileEntry) Mesh(name string) (*MeshEntry, bool) {
	for i := range f.Meshes {
		if f.Meshes[i].Name == name {
			return &f.Meshes[i], true
		}
	}
	return nil, false
}

// Header is the parsed directory of a bundle. It keeps the bundle bytes so
// meshes can be resolved later.
type Header struct {
	Zero          int
	Origin        int
	Unknown       int32
	Textures      []string
	DataBlocks    []DataBlock
	StreamFormats []StreamFormat
	Files         []FileEntry

	data   []byte
	logger *slog.Logger
}

// Option configures header parsing.
type Option func(*Header)

// WithLogger sets the logger used for parse and resolve events.
func WithLogger(l *slog.Logger) Option {
	return func(h *Header) {
		if l != nil {
			h.logger = l
		}
	}
}

// FormatIndex maps a part's format field to a stream-format index. The
// constants are an empirical property of the format.
func FormatIndex(v int32, fileCount int) int {
	return (int(v)/4 - fileCount - 3) / 18
}

// Open reads and parses the bundle at path.
func Open(path string, opts ...Option) (*Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	h, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Parse decodes the bundle header and walks every file, mesh and part once to
// assign each mesh its first data block.
func Parse(data []byte, opts ...Option) (*Header, error) {
	h := &Header{data: data, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}
	h.logger.Debug("parse bundle header", slog.Int("size", len(data)))

	r := binreader.New(data)
	h.Origin = int(r.ReadI32()) + 4

	numTextures := r.ReadI32()
	if err := checkCount(r, numTextures, 2); err != nil {
		return nil, fmt.Errorf("bundle: texture table: %w", err)
	}
	h.Textures = make([]string, numTextures)
	for i := range h.Textures {
		r.ReadU8() // length prefix, the string is NUL-terminated anyway
		h.Textures[i] = r.ReadCString()
	}

	numBlocks := r.ReadI32()
	if err := checkCount(r, numBlocks, 8); err != nil {
		return nil, fmt.Errorf("bundle: data blocks: %w", err)
	}
	h.DataBlocks = make([]DataBlock, numBlocks)
	for i := range h.DataBlocks {
		b := DataBlock{Stride: r.ReadI32(), Length: r.ReadI32()}
		b.Start = r.Tell()
		r.Shift(int(b.Length))
		h.DataBlocks[i] = b
	}

	h.Zero = r.Tell()
	numFiles := r.ReadI32()
	numFormats := r.ReadI32()
	h.Unknown = r.ReadI32()

	offsets := r.ReadU32Table(numFiles, 0)
	if err := checkCount(r, numFormats, 4*(channelCount+2)); err != nil {
		return nil, fmt.Errorf("bundle: stream formats: %w", err)
	}
	h.StreamFormats = make([]StreamFormat, numFormats)
	for i := range h.StreamFormats {
		h.StreamFormats[i] = readStreamFormat(r)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("bundle: header: %w", err)
	}

	h.Files = make([]FileEntry, len(offsets))
	for i, off := range offsets {
		h.Files[i].PosStart = off
	}
	if err := h.indexData(r); err != nil {
		return nil, err
	}
	h.logger.Debug("bundle header parsed",
		slog.Int("textures", len(h.Textures)),
		slog.Int("blocks", len(h.DataBlocks)),
		slog.Int("formats", len(h.StreamFormats)),
		slog.Int("files", len(h.Files)))
	return h, nil
}

// checkCount rejects negative counts and counts that cannot fit in the rest of
// the buffer at minSize bytes per element.
func checkCount(r *binreader.Reader, n int32, minSize int) error {
	if err := r.Err(); err != nil {
		return err
	}
	if n < 0 || int64(n)*int64(minSize) > int64(r.Remaining()) {
		return fmt.Errorf("%w: count %d at %d, %d bytes left", binreader.ErrOutOfRange, n, r.Tell(), r.Remaining())
	}
	return nil
}

func readStreamFormat(r *binreader.Reader) StreamFormat {
	f := StreamFormat{WordSize: r.ReadI32() / 4}
	for i := range f.Channels {
		f.Channels[i] = r.ReadI32()
	}
	f.Streams = r.ReadI32() + 1
	return f
}

// indexData walks file -> mesh -> part. The bundle does not store which data
// block belongs to which mesh: each part with geometry consumes numAnim blocks
// in directory order.
func (h *Header) indexData(r *binreader.Reader) error {
	dataIndex := 0
	for i := range h.Files {
		f := &h.Files[i]
		r.Seek(int(f.PosStart) + h.Zero)
		f.Name = r.ReadFixedString(fileNameSize)
		offsets := r.ReadU32Table(r.ReadI32(), 0)
		if err := r.Err(); err != nil {
			return fmt.Errorf("bundle: file entry %d: %w", i, err)
		}

		f.Meshes = make([]MeshEntry, len(offsets))
		for j, off := range offsets {
			m := &f.Meshes[j]
			m.PosStart = off
			base := int(off) + h.Zero

			r.Seek(base)
			r.Seek(int(r.ReadI32()) + h.Zero)
			m.Name = r.ReadCString()
			m.DataIndex = dataIndex

			r.Seek(base + meshPartsOffset)
			numParts := r.ReadI32()
			for k := 0; k < int(numParts) && r.Err() == nil; k++ {
				r.Seek(base + meshPartTable + k*4)
				r.Seek(int(r.ReadI32()) + partFormatOffset + h.Zero)
				frmt := r.ReadI32()
				bitcode := r.ReadI32()
				r.ReadI32() // usage
				if r.Err() != nil || bitcode == 0 || frmt == 0 {
					continue
				}
				format, err := h.streamFormat(frmt)
				if err != nil {
					return fmt.Errorf("bundle: %s/%s part %d: %w", f.Name, m.Name, k, err)
				}
				if format.WordSize == 0 {
					continue
				}
				r.Shift(partAnimSkip)
				dataIndex += int(r.ReadI32())
			}
			if err := r.Err(); err != nil {
				return fmt.Errorf("bundle: mesh entry %d of %s: %w", j, f.Name, err)
			}
		}
	}
	return nil
}

func (h *Header) streamFormat(frmt int32) (*StreamFormat, error) {
	idx := FormatIndex(frmt, len(h.Files))
	if idx < 0 || idx >= len(h.StreamFormats) {
		return nil, fmt.Errorf("%w: field %d gives %d of %d", ErrBadFormatIndex, frmt, idx, len(h.StreamFormats))
	}
	return &h.StreamFormats[idx], nil
}

// NormalizeName puts a scene file path into the form used for file entry
// lookups: lower case with forward slashes.
func NormalizeName(name string) string {
	return path.Clean(strings.ToLower(strings.ReplaceAll(name, `\`, "/")))
}

// File returns the file entry whose name matches name after normalisation.
func (h *Header) File(name string) (*FileEntry, bool) {
	want := NormalizeName(name)
	for i := range h.Files {
		if NormalizeName(h.Files[i].Name) == want {
			return &h.Files[i], true
		}
	}
	return nil, false
}

// Data returns the raw bundle bytes.
func (h *Header) Data() []byte {
	return h.data
}
