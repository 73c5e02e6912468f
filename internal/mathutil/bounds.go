package mathutil

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min, Max mgl32.Vec3
}

// Bounds returns the bounding box of pts, or false when pts is empty.
func Bounds(pts []mgl32.Vec3) (Box, bool) {
	if len(pts) == 0 {
		return Box{}, false
	}
	b := Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		for i := 0; i < 3; i++ {
			b.Min[i] = math32.Min(b.Min[i], p[i])
			b.Max[i] = math32.Max(b.Max[i], p[i])
		}
	}
	return b, true
}

// Center returns the midpoint of the box.
func (b Box) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent of the box along each axis.
func (b Box) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// MaxExtent returns the largest of the three axis extents.
func (b Box) MaxExtent() float32 {
	s := b.Size()
	return math32.Max(s[0], math32.Max(s[1], s[2]))
}
