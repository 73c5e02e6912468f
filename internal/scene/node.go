// Package scene assembles decoded scene-tree documents and bundle geometry
// into a hierarchy of positioned nodes.
package scene

import (
	"bufio"
	"io"
	"strings"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/bundle"
	"tlj-scene-extractor/internal/mathutil"
)

// Light is a point light derived from a glowing mesh. Color is in the 0..255
// range of the source texture.
type Light struct {
	Color     mgl32.Vec3 `json:"color"`
	Position  mgl32.Vec3 `json:"position"`
	Intensity float32    `json:"intensity"`
}

// Node is one assembled scene node. A node owns its children.
type Node struct {
	Name     string
	Mesh     *bundle.Mesh
	Light    *Light
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    float32
	Children []*Node
}

// Transform is a node's placement split into translation, Euler XYZ rotation
// in radians and a uniform scale.
type Transform struct {
	Translation mgl32.Vec3 `json:"translation"`
	Rotation    mgl32.Vec3 `json:"rotation"`
	Scale       float32    `json:"scale"`
}

const normalizedEpsilon = 1e-5

// Transformation returns the node placement. A rotation quaternion that is not
// unit length carries a scale factor equal to its squared length.
func (n *Node) Transformation() Transform {
	scale := float32(1)
	if n.Scale != 0 {
		scale = 1 / n.Scale
	}
	q := n.Rotation
	if dot := q.Dot(q); math32.Abs(dot-1) > normalizedEpsilon && dot > 0 {
		scale *= dot
		q = q.Normalize()
	}
	return Transform{
		Translation: n.Position,
		Rotation:    mathutil.QuatToEuler(q),
		Scale:       scale,
	}
}

// NumMeshes counts the meshes in the subtree rooted at n.
func (n *Node) NumMeshes() int {
	count := 0
	n.Walk(func(c *Node) {
		if c.Mesh != nil {
			count++
		}
	})
	return count
}

// NumLights counts the lights in the subtree rooted at n.
func (n *Node) NumLights() int {
	count := 0
	n.Walk(func(c *Node) {
		if c.Light != nil {
			count++
		}
	})
	return count
}

// Walk calls fn for n and every descendant, parents first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// hasTexture reports whether the first part of the mesh has a first texture.
func (n *Node) hasTexture() bool {
	if n.Mesh == nil || len(n.Mesh.Parts) == 0 {
		return false
	}
	tex := n.Mesh.Parts[0].Textures
	return len(tex) > 0 && tex[0] != ""
}

// Fprint writes the subtree one node per line, marking meshes with (m) and
// textured meshes with (t).
func Fprint(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	printNode(bw, n, 0)
	return bw.Flush()
}

func printNode(w *bufio.Writer, n *Node, depth int) {
	w.WriteString(strings.Repeat(" ", depth))
	w.WriteString(n.Name)
	w.WriteByte(' ')
	if n.Mesh != nil {
		w.WriteString("(m)")
	}
	if n.hasTexture() {
		w.WriteString("(t)")
	}
	w.WriteByte('\n')
	for _, c := range n.Children {
		printNode(w, c, depth+1)
	}
}
