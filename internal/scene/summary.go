package scene

// PartSummary describes one mesh part for reports.
type PartSummary struct {
	IndexInterval  [2]int   `json:"index_interval"`
	VertexInterval [2]int   `json:"vertex_interval"`
	Textures       []string `json:"textures,omitempty"`
	AlphaTexture   string   `json:"alpha_texture,omitempty"`
}

// MeshSummary describes a mesh without its buffers.
type MeshSummary struct {
	Name     string        `json:"name"`
	Vertices int           `json:"vertices"`
	Indices  int           `json:"indices"`
	Normals  bool          `json:"normals"`
	Smooth   bool          `json:"smooth,omitempty"`
	Rescale  float32       `json:"rescale"`
	Parts    []PartSummary `json:"parts"`
}

// NodeSummary is the JSON form of a scene node.
type NodeSummary struct {
	Name      string         `json:"name"`
	Transform Transform      `json:"transform"`
	Mesh      *MeshSummary   `json:"mesh,omitempty"`
	Light     *Light         `json:"light,omitempty"`
	Children  []*NodeSummary `json:"children,omitempty"`
}

// Summarize converts the subtree rooted at n for reporting.
func Summarize(n *Node) *NodeSummary {
	s := &NodeSummary{
		Name:      n.Name,
		Transform: n.Transformation(),
		Light:     n.Light,
	}
	if m := n.Mesh; m != nil {
		ms := &MeshSummary{
			Name:     m.Name,
			Vertices: len(m.Vertices),
			Indices:  len(m.Indices),
			Normals:  len(m.Normals) > 0,
			Smooth:   m.Smooth,
			Rescale:  m.Rescale,
		}
		for _, p := range m.Parts {
			ms.Parts = append(ms.Parts, PartSummary{
				IndexInterval:  p.IndexInterval,
				VertexInterval: p.VertexInterval,
				Textures:       p.Textures,
				AlphaTexture:   p.AlphaTexture,
			})
		}
		s.Mesh = ms
	}
	for _, c := range n.Children {
		s.Children = append(s.Children, Summarize(c))
	}
	return s
}
