package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/bundle"
	"tlj-scene-extractor/internal/shark"
)

var (
	// ErrMissingName is returned for a scene-tree node without a name entry.
	ErrMissingName = errors.New("scene: node has no name")

	// ErrBadTransform is returned when transl or quat has too few components.
	ErrBadTransform = errors.New("scene: malformed transform")
)

const (
	rootPath      = "data/root"
	childrenEntry = "child_array"
	containerExt  = ".smr"
)

// MeshResolver decodes a named mesh exported from a scene file. It returns
// nil, nil when no geometry is available. *bundle.Header implements it.
type MeshResolver interface {
	ResolveMesh(containerFile, meshName string) (*bundle.Mesh, error)
}

// TextureProcessor turns the texture names of a mesh part into usable files,
// rewriting part.Textures and part.AlphaTexture in place.
type TextureProcessor interface {
	ProcessPart(part *bundle.MeshPart) error
}

// Enricher adds derived data to a node after its mesh has been attached.
type Enricher interface {
	Enrich(n *Node) error
}

// Assembler builds scene nodes from decoded scene-tree documents.
type Assembler struct {
	meshes    MeshResolver
	textures  TextureProcessor
	enrichers []Enricher
	logger    *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for assembly events.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTextures runs p over every mesh part before enrichment.
func WithTextures(p TextureProcessor) Option {
	return func(a *Assembler) { a.textures = p }
}

// WithEnricher appends an enrichment pass, such as light inference.
func WithEnricher(e Enricher) Option {
	return func(a *Assembler) {
		if e != nil {
			a.enrichers = append(a.enrichers, e)
		}
	}
}

// NewAssembler returns an Assembler resolving meshes through meshes.
func NewAssembler(meshes MeshResolver, opts ...Option) *Assembler {
	a := &Assembler{meshes: meshes, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ContainerFile returns the bundle file entry name for a scene document.
func ContainerFile(docPath string) string {
	return strings.TrimSuffix(docPath, path.Ext(docPath)) + containerExt
}

// DocumentName returns the document's base name without extension.
func DocumentName(docPath string) string {
	base := path.Base(strings.ReplaceAll(docPath, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Assemble builds the scene described by tree, a decoded document read from
// docPath. It returns nil, nil when the document has no data/root or nothing
// in it carries geometry.
func (a *Assembler) Assemble(tree *shark.Node, docPath string) (*Node, error) {
	root := tree.Lookup(rootPath)
	if root == nil {
		a.logger.Warn("document has no data/root", slog.String("document", docPath))
		return nil, nil
	}

	b := &build{Assembler: a, container: ContainerFile(docPath)}
	n, err := b.node(root)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", docPath, err)
	}
	if n != nil {
		n.Name = DocumentName(docPath)
	}
	return n, nil
}

// build carries per-document state through the recursion.
type build struct {
	*Assembler
	container string
}

// node returns nil for subtrees without geometry.
func (b *build) node(t *shark.Node) (*Node, error) {
	n := &Node{Rotation: mgl32.QuatIdent(), Scale: 1}

	if v := t.Child("transl"); v != nil {
		f, ok := v.Floats()
		if !ok || len(f) < 3 {
			return nil, fmt.Errorf("%w: transl %s[%d]", ErrBadTransform, v.Kind, v.Len())
		}
		n.Position = mgl32.Vec3{f[0], f[1], f[2]}
	}
	if v := t.Child("quat"); v != nil {
		f, ok := v.Floats()
		if !ok || len(f) < 4 {
			return nil, fmt.Errorf("%w: quat %s[%d]", ErrBadTransform, v.Kind, v.Len())
		}
		n.Rotation = mgl32.Quat{W: f[3], V: mgl32.Vec3{f[0], f[1], f[2]}}
	}

	name, ok := t.TextAt("name")
	if !ok {
		return nil, ErrMissingName
	}
	n.Name = name

	model, hasModel := t.TextAt("model")
	_, hasShader := t.TextAt("shader")
	if hasModel && hasShader {
		if err := b.attachMesh(n, model); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	group := t.Child(childrenEntry)
	for i := 0; i < group.Len(); i++ {
		child, err := b.node(group.At(i))
		if err != nil {
			return nil, err
		}
		if child != nil {
			n.Children = append(n.Children, child)
		}
	}

	if n.Mesh == nil && len(n.Children) == 0 {
		return nil, nil
	}
	return n, nil
}

func (b *build) attachMesh(n *Node, model string) error {
	b.logger.Debug("trying to load mesh", slog.String("model", model), slog.String("file", b.container))
	mesh, err := b.meshes.ResolveMesh(b.container, model)
	if err != nil || mesh == nil {
		return err
	}
	if b.textures != nil {
		for i := range mesh.Parts {
			if err := b.textures.ProcessPart(&mesh.Parts[i]); err != nil {
				return err
			}
		}
	}
	n.Mesh = mesh
	for _, e := range b.enrichers {
		if err := e.Enrich(n); err != nil {
			return err
		}
	}
	return nil
}
