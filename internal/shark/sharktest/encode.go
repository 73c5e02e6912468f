// Package sharktest builds scene-tree documents for tests of packages that
// consume decoded trees.
package sharktest

import (
	"encoding/binary"
	"fmt"
	"math"

	"tlj-scene-extractor/internal/shark"
)

// Encode serialises the entries of root into a complete document that
// shark.Parse decodes back into an equal tree. Repeated strings are written
// as back-references.
func Encode(root *shark.Node) []byte {
	e := &encoder{seen: make(map[string]int64)}
	e.b = append(e.b, shark.Magic...)
	e.b = append(e.b, 0)
	e.b = append(e.b, shark.Version...)
	e.b = append(e.b, 0)
	e.list(root.Children())
	return e.b
}

type encoder struct {
	b       []byte
	counter int64
	seen    map[string]int64
}

func (e *encoder) varint(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			e.b = append(e.b, b)
			return
		}
		e.b = append(e.b, b|0x80)
	}
}

func (e *encoder) str(s string) {
	if idx, ok := e.seen[s]; ok {
		e.varint(e.counter - idx)
		return
	}
	e.varint(0)
	e.seen[s] = e.counter
	e.counter++
	e.b = append(append(e.b, s...), 0)
}

func (e *encoder) float(f float32) {
	e.b = binary.BigEndian.AppendUint32(e.b, math.Float32bits(f))
}

func (e *encoder) list(nodes []*shark.Node) {
	e.varint(int64(len(nodes)))
	for _, n := range nodes {
		e.node(n)
	}
}

func (e *encoder) node(n *shark.Node) {
	e.str(n.Name)
	switch n.Kind {
	case shark.Empty:
		e.b = append(e.b, 0x00)
	case shark.Int:
		v, _ := n.Int()
		e.b = append(e.b, 0x01)
		e.varint(v)
	case shark.IntArray:
		v, _ := n.Ints()
		e.b = append(e.b, 0x02)
		e.varint(int64(len(v)))
		for _, x := range v {
			e.varint(x)
		}
	case shark.Float:
		v, _ := n.Float()
		e.b = append(e.b, 0x04)
		e.float(v)
	case shark.FloatArray:
		v, _ := n.Floats()
		e.b = append(e.b, 0x08)
		e.varint(int64(len(v)))
		for _, x := range v {
			e.float(x)
		}
	case shark.String:
		v, _ := n.Text()
		e.b = append(e.b, 0x10)
		e.str(v)
	case shark.StringArray:
		v, _ := n.Strings()
		e.b = append(e.b, 0x20)
		e.varint(int64(len(v)))
		for _, x := range v {
			e.str(x)
		}
	case shark.Sub:
		e.b = append(e.b, 0x40)
		e.list(n.Children())
	case shark.SubArray:
		e.b = append(e.b, 0x80)
		e.varint(int64(n.Len()))
		for i := 0; i < n.Len(); i++ {
			e.list(n.At(i).Children())
		}
	default:
		panic(fmt.Sprintf("sharktest: cannot encode kind %v", n.Kind))
	}
}
