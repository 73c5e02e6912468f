package scene

import (
	"log/slog"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/mathutil"
)

// GlowMarker identifies meshes that stand in for a light source.
const GlowMarker = "lampglow"

// ColorSampler returns the average RGB color of a texture file in the 0..255
// range.
type ColorSampler interface {
	AverageColor(path string) (mgl32.Vec3, error)
}

// LightInference guesses a point light for glow meshes from their first
// texture and bounding box. The result is a heuristic, not data stored in the
// scene files.
type LightInference struct {
	Colors ColorSampler
	Logger *slog.Logger
}

// Enrich attaches a Light to n when its mesh is a glow mesh with a readable
// texture. A texture that cannot be sampled only costs the light.
func (li *LightInference) Enrich(n *Node) error {
	m := n.Mesh
	if li.Colors == nil || m == nil || !strings.Contains(m.Name, GlowMarker) || len(m.Parts) == 0 || len(m.Parts[0].Textures) == 0 {
		return nil
	}
	box, ok := mathutil.Bounds(m.Vertices)
	if !ok {
		return nil
	}
	color, err := li.Colors.AverageColor(m.Parts[0].Textures[0])
	if err != nil {
		if li.Logger != nil {
			li.Logger.Warn("no light color", slog.String("mesh", m.Name), slog.String("error", err.Error()))
		}
		return nil
	}
	n.Light = &Light{
		Color:     color,
		Position:  box.Center(),
		Intensity: 10 * box.MaxExtent(),
	}
	return nil
}
