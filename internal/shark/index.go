package shark

import (
	"path"
	"strings"
)

const (
	typeLoadTree     = "mod_engobj_funcom.loadtree"
	typeCapsule      = "mod_core.capsule"
	typeLocationInit = "mod_engobj_funcom.locationinit"

	childrenPath = "actor_param/child_param/children"
)

// Document is one scene document referenced by a location.
type Document struct {
	Filename string // base name without extension
	Path     string
}

// SceneIndex lists what a location document loads.
type SceneIndex struct {
	Documents   []Document
	BundleFiles []string
}

// ParseSceneIndex collects the scene documents and bundle files referenced by
// a decoded location document.
func ParseSceneIndex(root *Node) *SceneIndex {
	idx := &SceneIndex{}
	for _, p := range sceneTrees(root.Lookup(childrenPath)) {
		idx.Documents = append(idx.Documents, Document{Filename: baseName(p), Path: p})
	}
	idx.BundleFiles = bundleFiles(root)
	return idx
}

func sceneTrees(children *Node) []string {
	var out []string
	for i := 0; i < children.Len(); i++ {
		child := children.At(i)
		switch typ, _ := child.TextAt("type"); typ {
		case typeLoadTree:
			if tree, ok := child.TextAt("param/tree"); ok {
				out = append(out, tree)
			}
		case typeCapsule:
			out = append(out, sceneTrees(child.Lookup("param/child_param/children"))...)
		}
	}
	return out
}

func bundleFiles(root *Node) []string {
	children := root.Lookup(childrenPath)
	for i := 0; i < children.Len(); i++ {
		child := children.At(i)
		if typ, _ := child.TextAt("type"); typ == typeLocationInit {
			files, _ := child.StringsAt("param/bpr_files")
			return files
		}
	}
	return nil
}

func baseName(p string) string {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}
