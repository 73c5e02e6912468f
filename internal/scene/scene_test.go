package scene

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlj-scene-extractor/internal/bundle"
	"tlj-scene-extractor/internal/shark"
)

type fakeResolver struct {
	meshes map[string]*bundle.Mesh
	err    error
	calls  []string
}

func (f *fakeResolver) ResolveMesh(container, name string) (*bundle.Mesh, error) {
	f.calls = append(f.calls, container+":"+name)
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.meshes[name]
	if !ok {
		return nil, nil
	}
	// hand out a copy so passes cannot leak between nodes
	cp := *m
	cp.Parts = append([]bundle.MeshPart(nil), m.Parts...)
	return &cp, nil
}

func mesh(name string, textures ...string) *bundle.Mesh {
	return &bundle.Mesh{
		Name:     name,
		Vertices: []mgl32.Vec3{{0, 0, 0}, {2, 1, 0}, {0, 4, 1}},
		Indices:  []uint16{0, 1, 2},
		Parts:    []bundle.MeshPart{{IndexInterval: [2]int{0, 3}, VertexInterval: [2]int{0, 3}, Textures: textures}},
	}
}

func leaf(name, model string, extra ...*shark.Node) *shark.Node {
	entries := []*shark.Node{shark.NewString("name", name)}
	if model != "" {
		entries = append(entries, shark.NewString("model", model), shark.NewString("shader", "default"))
	}
	return shark.NewSub(name, append(entries, extra...)...)
}

func group(name string, children ...*shark.Node) *shark.Node {
	return shark.NewSub(name,
		shark.NewString("name", name),
		shark.NewSubArray("child_array", children...),
	)
}

// document places the entries of root at data/root, whatever root is named.
func document(root *shark.Node) *shark.Node {
	return shark.NewSub("root", shark.NewSub("data", shark.NewSub("root", root.Children()...)))
}

func TestAssemblePrunesEmptyBranches(t *testing.T) {
	tree := document(group("top",
		group("empty", leaf("deeper", "")),
		group("holder", leaf("chair", "chair_m", shark.NewFloats("transl", 1, 2, 3))),
		leaf("unknown", "not_in_bundle"),
	))
	res := &fakeResolver{meshes: map[string]*bundle.Mesh{"chair_m": mesh("chair_m", "tex/chair.png")}}

	n, err := NewAssembler(res).Assemble(tree, "data/generated/japan/street_a.sir")
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, "street_a", n.Name)
	require.Len(t, n.Children, 1)
	holder := n.Children[0]
	assert.Equal(t, "holder", holder.Name)
	assert.Nil(t, holder.Mesh, "kept for its mesh-bearing child")
	require.Len(t, holder.Children, 1)

	chair := holder.Children[0]
	require.NotNil(t, chair.Mesh)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, chair.Position)
	assert.Equal(t, mgl32.QuatIdent(), chair.Rotation)
	assert.Equal(t, float32(1), chair.Scale)

	assert.Equal(t, []string{
		"data/generated/japan/street_a.smr:chair_m",
		"data/generated/japan/street_a.smr:not_in_bundle",
	}, res.calls)
	assert.Equal(t, 1, n.NumMeshes())
}

func TestAssembleSubChildArray(t *testing.T) {
	tree := document(shark.NewSub("root",
		shark.NewString("name", "top"),
		shark.NewSub("child_array", shark.NewString("name", "only"),
			shark.NewString("model", "m"), shark.NewString("shader", "s")),
	))
	res := &fakeResolver{meshes: map[string]*bundle.Mesh{"m": mesh("m")}}

	n, err := NewAssembler(res).Assemble(tree, "doc.sir")
	require.NoError(t, err)
	require.NotNil(t, n)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "only", n.Children[0].Name)
}

func TestAssembleNothingToKeep(t *testing.T) {
	res := &fakeResolver{}
	a := NewAssembler(res)

	n, err := a.Assemble(shark.NewSub("root"), "doc.sir")
	assert.NoError(t, err)
	assert.Nil(t, n, "no data/root")

	n, err = a.Assemble(document(group("top", leaf("a", ""), leaf("b", "missing"))), "doc.sir")
	assert.NoError(t, err)
	assert.Nil(t, n)
}

func TestAssembleModelNeedsShader(t *testing.T) {
	res := &fakeResolver{meshes: map[string]*bundle.Mesh{"m": mesh("m")}}
	tree := document(group("top", shark.NewSub("x", shark.NewString("name", "x"), shark.NewString("model", "m"))))

	n, err := NewAssembler(res).Assemble(tree, "doc.sir")
	assert.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, res.calls)
}

func TestAssembleErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		tree *shark.Node
		res  *fakeResolver
		want error
	}{
		{"missing name", document(group("top", shark.NewSub("x"))), &fakeResolver{}, ErrMissingName},
		{"short transl", document(group("top", leaf("x", "", shark.NewFloats("transl", 1, 2)))), &fakeResolver{}, ErrBadTransform},
		{"quat of wrong kind", document(group("top", leaf("x", "", shark.NewInt("quat", 1)))), &fakeResolver{}, ErrBadTransform},
		{"resolver failure", document(group("top", leaf("x", "m"))), &fakeResolver{err: boom}, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(tt.res).Assemble(tt.tree, "doc.sir")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestQuatComponentOrder(t *testing.T) {
	res := &fakeResolver{meshes: map[string]*bundle.Mesh{"m": mesh("m")}}
	tree := document(leaf("x", "m", shark.NewFloats("quat", 0.1, 0.2, 0.3, 0.9)))

	n, err := NewAssembler(res).Assemble(tree, "doc.sir")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, mgl32.Quat{W: 0.9, V: mgl32.Vec3{0.1, 0.2, 0.3}}, n.Rotation)
}

type renamingTextures struct{ calls int }

func (r *renamingTextures) ProcessPart(p *bundle.MeshPart) error {
	r.calls++
	for i, tex := range p.Textures {
		p.Textures[i] = "out/" + tex
	}
	if len(p.Textures) > 0 && strings.Contains(p.Textures[0], "glow") {
		p.AlphaTexture = "out/alpha.png"
	}
	return nil
}

type fixedColor struct {
	color mgl32.Vec3
	err   error
	paths []string
}

func (f *fixedColor) AverageColor(path string) (mgl32.Vec3, error) {
	f.paths = append(f.paths, path)
	return f.color, f.err
}

func TestLightInference(t *testing.T) {
	res := &fakeResolver{meshes: map[string]*bundle.Mesh{
		"lampglow_01": mesh("lampglow_01", "tex/glow.png"),
		"lamp_post":   mesh("lamp_post", "tex/post.png"),
		"lampglow_02": mesh("lampglow_02"),
	}}
	textures := &renamingTextures{}
	colors := &fixedColor{color: mgl32.Vec3{200, 100, 50}}
	a := NewAssembler(res, WithTextures(textures), WithEnricher(&LightInference{Colors: colors}))

	tree := document(group("top",
		leaf("glow", "lampglow_01"),
		leaf("post", "lamp_post"),
		leaf("bare", "lampglow_02"),
	))
	n, err := a.Assemble(tree, "doc.sir")
	require.NoError(t, err)
	require.Len(t, n.Children, 3)

	glow := n.Children[0]
	require.NotNil(t, glow.Light)
	assert.Equal(t, mgl32.Vec3{200, 100, 50}, glow.Light.Color)
	assert.Equal(t, mgl32.Vec3{1, 2, 0.5}, glow.Light.Position)
	assert.Equal(t, float32(40), glow.Light.Intensity)
	assert.Equal(t, "out/alpha.png", glow.Mesh.Parts[0].AlphaTexture)
	assert.Equal(t, []string{"out/tex/glow.png"}, colors.paths, "samples the processed texture")

	assert.Nil(t, n.Children[1].Light, "not a glow mesh")
	assert.Nil(t, n.Children[2].Light, "glow mesh without texture")
	assert.Equal(t, 3, textures.calls)
	assert.Equal(t, 1, n.NumLights())
}

func TestLightInferenceSamplerFailure(t *testing.T) {
	n := &Node{Mesh: mesh("lampglow", "tex/glow.png")}
	li := &LightInference{Colors: &fixedColor{err: errors.New("unreadable")}}
	require.NoError(t, li.Enrich(n))
	assert.Nil(t, n.Light)
}

func TestLightInferenceWithoutSampler(t *testing.T) {
	n := &Node{Mesh: mesh("lampglow", "tex/glow.png")}
	require.NoError(t, (&LightInference{}).Enrich(n))
	assert.Nil(t, n.Light)
}

func TestTransformation(t *testing.T) {
	n := &Node{Position: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.Quat{W: 2}, Scale: 1}
	tr := n.Transformation()
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, tr.Translation)
	assert.InDelta(t, 4, tr.Scale, 1e-5)
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, tr.Rotation)

	n = &Node{Rotation: mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}), Scale: 1}
	tr = n.Transformation()
	assert.InDelta(t, 1, tr.Scale, 1e-5)
	assert.InDelta(t, mgl32.DegToRad(90), tr.Rotation[2], 1e-5)
}

func TestFprint(t *testing.T) {
	n := &Node{Name: "street", Children: []*Node{
		{Name: "lamp", Mesh: mesh("lamp", "tex/lamp.png")},
		{Name: "group", Children: []*Node{{Name: "bare", Mesh: mesh("bare")}}},
	}}
	var sb strings.Builder
	require.NoError(t, Fprint(&sb, n))
	assert.Equal(t, "street \n lamp (m)(t)\n group \n  bare (m)\n", sb.String())
}

func TestSummarize(t *testing.T) {
	n := &Node{Name: "street", Rotation: mgl32.QuatIdent(), Scale: 1, Children: []*Node{
		{Name: "lamp", Rotation: mgl32.QuatIdent(), Scale: 1, Mesh: mesh("lamp", "tex/lamp.png"), Light: &Light{Intensity: 3}},
	}}
	s := Summarize(n)
	assert.Nil(t, s.Mesh)
	require.Len(t, s.Children, 1)
	lamp := s.Children[0]
	require.NotNil(t, lamp.Mesh)
	assert.Equal(t, 3, lamp.Mesh.Vertices)
	assert.False(t, lamp.Mesh.Normals)
	assert.Equal(t, []string{"tex/lamp.png"}, lamp.Mesh.Parts[0].Textures)
	assert.Equal(t, float32(3), lamp.Light.Intensity)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "data/a/b.smr", ContainerFile("data/a/b.sir"))
	assert.Equal(t, `data\a\b.smr`, ContainerFile(`data\a\b.sir`))
	assert.Equal(t, "b", DocumentName(`data\a\b.sir`))
}
