package bundle

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/binreader"
	"tlj-scene-extractor/internal/vertex"
)

// MeshPart is the index and vertex range drawn with one texture stage.
// Intervals are half-open.
type MeshPart struct {
	IndexInterval  [2]int
	VertexInterval [2]int
	Textures       []string
	AlphaTexture   string // empty when the part has no alpha mask
}

// Mesh is decoded geometry ready for export.
type Mesh struct {
	Name     string
	Vertices []mgl32.Vec3
	Normals  []mgl32.Vec3
	UVs      []mgl32.Vec2
	Indices  []uint16
	Parts    []MeshPart
	Smooth   bool
	Rescale  float32
}

// ResolveMesh decodes the mesh called meshName exported from the scene file
// containerFile. It returns nil, nil when the bundle holds no usable geometry
// for it; errors are reserved for inconsistent data.
func (h *Header) ResolveMesh(containerFile, meshName string) (*Mesh, error) {
	file, ok := h.File(containerFile)
	if !ok {
		h.logger.Debug("no file entry", slog.String("file", containerFile))
		return nil, nil
	}
	entry, ok := file.Mesh(meshName)
	if !ok {
		h.logger.Debug("no mesh entry", slog.String("file", containerFile), slog.String("mesh", meshName))
		return nil, nil
	}

	r := binreader.New(h.data)
	r.SetZero(h.Zero)
	r.SeekRel(int(entry.PosStart))
	info, err := ReadMeshInfo(r)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve %s in %s: %w", meshName, file.Name, err)
	}
	if len(info.Parts) == 0 {
		return nil, nil
	}

	part := &info.Parts[0]
	ph := &part.Header
	if ph.FormatIdx == 0 || ph.Bitcode == 0 || ph.NumTextures == 0 {
		return nil, nil
	}
	format, err := h.streamFormat(ph.FormatIdx)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve %s: %w", meshName, err)
	}
	if format.WordSize == 0 {
		return nil, nil
	}

	raw, err := h.vertexBytes(entry, ph, format)
	if err != nil {
		return nil, fmt.Errorf("bundle: resolve %s: %w", meshName, err)
	}

	streams, ok := vertex.Decode(format.Channels[:], raw)
	if !ok {
		h.logger.Debug("unsupported vertex layout", slog.String("mesh", meshName), slog.Any("channels", format.Channels))
		return nil, nil
	}
	indices := vertex.Indices(part.Indices)
	if len(indices) == 0 {
		return nil, nil
	}

	mesh := &Mesh{
		Name:     meshName,
		Vertices: streams.Positions,
		Normals:  streams.Normals,
		UVs:      streams.UVs,
		Indices:  indices,
		Smooth:   strings.Contains(meshName, "skydome"),
		Rescale:  info.Header.Rescale,
	}
	if mesh.Parts, err = h.meshParts(info, part); err != nil {
		return nil, fmt.Errorf("bundle: resolve %s: %w", meshName, err)
	}
	return mesh, nil
}

// vertexBytes returns the raw vertices of the first animation frame after
// checking that the data block agrees with the stream format.
func (h *Header) vertexBytes(entry *MeshEntry, ph *PartHeader, format *StreamFormat) ([]byte, error) {
	if entry.DataIndex < 0 || entry.DataIndex >= len(h.DataBlocks) {
		return nil, fmt.Errorf("%w: data block %d of %d", binreader.ErrOutOfRange, entry.DataIndex, len(h.DataBlocks))
	}
	block := h.DataBlocks[entry.DataIndex]
	if ph.NumAnim == 0 || block.Stride == 0 {
		return nil, fmt.Errorf("%w: %d frames, block stride %d", ErrStrideMismatch, ph.NumAnim, block.Stride)
	}
	patchVertices := ph.NumVertices / ph.NumAnim
	if block.Length/block.Stride != patchVertices || block.Stride/4 != format.WordSize {
		return nil, fmt.Errorf("%w: block at %d length %d stride %d, %d vertices, %d words",
			ErrStrideMismatch, block.Start, block.Length, block.Stride, patchVertices, format.WordSize)
	}

	r := binreader.New(h.data)
	r.Seek(block.Start)
	raw := r.ReadBytes(4 * int(format.WordSize) * int(patchVertices))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return raw, nil
}

// meshParts splits the mesh into one part per texture stage with cumulative
// intervals and resolved texture names.
func (h *Header) meshParts(info *MeshInfo, part *MeshPartInfo) ([]MeshPart, error) {
	n := int(part.Header.NumTexStages)
	if n < 0 || len(part.StageVertices) < n || len(part.StageIndices) < n {
		return nil, fmt.Errorf("%w: %d texture stages", binreader.ErrOutOfRange, n)
	}

	parts := make([]MeshPart, n)
	vOff, iOff := 0, 0
	for i := range parts {
		for _, tex := range part.Tex {
			if i >= len(tex.TexIdx) || tex.TexIdx[i] == -1 {
				continue
			}
			name, err := h.textureName(info, tex.TexIdx[i])
			if err != nil {
				return nil, err
			}
			parts[i].Textures = append(parts[i].Textures, name)
		}
		parts[i].VertexInterval = [2]int{vOff, vOff + int(part.StageVertices[i])}
		parts[i].IndexInterval = [2]int{iOff, iOff + int(part.StageIndices[i])}
		vOff += int(part.StageVertices[i])
		iOff += int(part.StageIndices[i])
	}
	return parts, nil
}

func (h *Header) textureName(info *MeshInfo, slot int32) (string, error) {
	if slot < 0 || int(slot) >= len(info.TexIdx) {
		return "", fmt.Errorf("%w: texture slot %d of %d", binreader.ErrOutOfRange, slot, len(info.TexIdx))
	}
	idx := info.TexIdx[slot]
	if idx < 0 || int(idx) >= len(h.Textures) {
		return "", fmt.Errorf("%w: texture %d of %d", binreader.ErrOutOfRange, idx, len(h.Textures))
	}
	return h.Textures[idx], nil
}
