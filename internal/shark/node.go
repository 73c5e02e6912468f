package shark

import "strings"

// Kind is the type of a tree node.
type Kind uint8

const (
	Empty Kind = iota
	Int
	IntArray
	Float
	FloatArray
	String
	StringArray
	Sub
	SubArray
)

var kindNames = [...]string{"empty", "int", "int[]", "float", "float[]", "string", "string[]", "sub", "sub[]"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Node is one named entry of a decoded tree. Only the value matching Kind is
// set. Sub nodes hold their entries in Nodes; SubArray nodes hold Sub nodes.
type Node struct {
	Name string
	Kind Kind

	i      int64
	f      float32
	s      string
	ints   []int64
	floats []float32
	strs   []string
	nodes  []*Node
}

func NewEmpty(name string) *Node { return &Node{Name: name, Kind: Empty} }

func NewInt(name string, v int64) *Node { return &Node{Name: name, Kind: Int, i: v} }

func NewInts(name string, v ...int64) *Node { return &Node{Name: name, Kind: IntArray, ints: v} }

func NewFloat(name string, v float32) *Node { return &Node{Name: name, Kind: Float, f: v} }

func NewFloats(name string, v ...float32) *Node { return &Node{Name: name, Kind: FloatArray, floats: v} }

func NewString(name, v string) *Node { return &Node{Name: name, Kind: String, s: v} }

func NewStrings(name string, v ...string) *Node { return &Node{Name: name, Kind: StringArray, strs: v} }

func NewSub(name string, children ...*Node) *Node { return &Node{Name: name, Kind: Sub, nodes: children} }

// NewSubArray builds an array of Sub nodes. Every element must be a Sub.
func NewSubArray(name string, elems ...*Node) *Node {
	return &Node{Name: name, Kind: SubArray, nodes: elems}
}

// Int returns the value of an Int node.
func (n *Node) Int() (int64, bool) {
	if n == nil || n.Kind != Int {
		return 0, false
	}
	return n.i, true
}

// Float returns the value of a Float node.
func (n *Node) Float() (float32, bool) {
	if n == nil || n.Kind != Float {
		return 0, false
	}
	return n.f, true
}

// Text returns the value of a String node.
func (n *Node) Text() (string, bool) {
	if n == nil || n.Kind != String {
		return "", false
	}
	return n.s, true
}

// Ints returns the values of an IntArray node.
func (n *Node) Ints() ([]int64, bool) {
	if n == nil || n.Kind != IntArray {
		return nil, false
	}
	return n.ints, true
}

// Floats returns the values of a FloatArray node.
func (n *Node) Floats() ([]float32, bool) {
	if n == nil || n.Kind != FloatArray {
		return nil, false
	}
	return n.floats, true
}

// Strings returns the values of a StringArray node.
func (n *Node) Strings() ([]string, bool) {
	if n == nil || n.Kind != StringArray {
		return nil, false
	}
	return n.strs, true
}

// Children returns the entries of a Sub node.
func (n *Node) Children() []*Node {
	if n == nil || n.Kind != Sub {
		return nil
	}
	return n.nodes
}

// Len returns the element count of an array node. A Sub counts as a
// single-element array of itself so callers can treat Sub and SubArray alike.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.Kind {
	case IntArray:
		return len(n.ints)
	case FloatArray:
		return len(n.floats)
	case StringArray:
		return len(n.strs)
	case Sub:
		return 1
	case SubArray:
		return len(n.nodes)
	}
	return 0
}

// At returns the i-th Sub of a SubArray, or n itself for a Sub and i == 0.
func (n *Node) At(i int) *Node {
	if n == nil || i < 0 {
		return nil
	}
	switch n.Kind {
	case Sub:
		if i == 0 {
			return n
		}
	case SubArray:
		if i < len(n.nodes) {
			return n.nodes[i]
		}
	}
	return nil
}

// Child returns the direct entry called name of a Sub node.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Lookup follows a slash-separated path of entry names through nested Sub
// nodes. It returns nil when a segment is missing or crosses a non-Sub node.
func (n *Node) Lookup(path string) *Node {
	if n == nil || path == "" {
		return nil
	}
	cur := n
	for _, seg := range strings.Split(path, "/") {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// TextAt returns the String value at path.
func (n *Node) TextAt(path string) (string, bool) {
	return n.Lookup(path).Text()
}

// FloatsAt returns the FloatArray value at path.
func (n *Node) FloatsAt(path string) ([]float32, bool) {
	return n.Lookup(path).Floats()
}

// StringsAt returns the StringArray value at path.
func (n *Node) StringsAt(path string) ([]string, bool) {
	return n.Lookup(path).Strings()
}
