// Package shark decodes "shark3d_snake_binary" scene-tree documents: a
// self-describing tree of named, typed entries with varint counts, big-endian
// floats and back-referenced strings.
package shark

import (
	"errors"
	"fmt"
	"os"

	"tlj-scene-extractor/internal/binreader"
)

const (
	Magic   = "shark3d_snake_binary"
	Version = "2x4"
)

const (
	tagEmpty       = 0x00
	tagInt         = 0x01
	tagIntArray    = 0x02
	tagFloat       = 0x04
	tagFloatArray  = 0x08
	tagString      = 0x10
	tagStringArray = 0x20
	tagSub         = 0x40
	tagSubArray    = 0x80
)

var (
	// ErrBadMagic is returned when a document does not start with Magic and Version.
	ErrBadMagic = errors.New("shark: bad magic")

	// ErrUnknownTag is returned for an entry type tag outside the known set.
	ErrUnknownTag = errors.New("shark: unknown type tag")
)

// decoder holds per-document string table state.
type decoder struct {
	r       *binreader.Reader
	counter int64
	strings map[int64]string
}

// Parse decodes a whole document. The returned root is a Sub named "root".
func Parse(data []byte) (*Node, error) {
	r := binreader.New(data)
	magic := r.ReadCString()
	version := r.ReadCString()
	if r.Err() != nil || magic != Magic || version != Version {
		return nil, fmt.Errorf("%w: %q %q", ErrBadMagic, magic, version)
	}

	d := &decoder{r: r, strings: make(map[int64]string)}
	nodes, err := d.readList()
	if err != nil {
		return nil, err
	}
	return NewSub("root", nodes...), nil
}

// ParseFile reads and decodes the document at path.
func ParseFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shark: read %s: %w", path, err)
	}
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// count reads a varint element count and rejects counts that cannot fit in the
// remaining bytes at minSize bytes per element.
func (d *decoder) count(minSize int) (int, error) {
	n := d.r.ReadVarInt()
	if err := d.r.Err(); err != nil {
		return 0, err
	}
	if n < 0 || n*int64(minSize) > int64(d.r.Remaining()) {
		return 0, fmt.Errorf("shark: %w: count %d at %d", binreader.ErrOutOfRange, n, d.r.Tell())
	}
	return int(n), nil
}

// indexString reads a string reference. A zero delta introduces a new string;
// otherwise the delta points back from the running counter.
func (d *decoder) indexString() string {
	delta := d.r.ReadVarInt()
	index := d.counter - delta
	if delta == 0 {
		d.counter++
	}
	if s, ok := d.strings[index]; ok {
		return s
	}
	s := d.r.ReadCString()
	if d.r.Err() == nil {
		d.strings[index] = s
	}
	return s
}

func (d *decoder) readList() ([]*Node, error) {
	// name reference and tag take at least two bytes
	n, err := d.count(2)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, n)
	for i := range nodes {
		if nodes[i], err = d.readNode(); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (d *decoder) readNode() (*Node, error) {
	name := d.indexString()
	pos := d.r.Tell()
	tag := d.r.ReadU8()
	if err := d.r.Err(); err != nil {
		return nil, err
	}

	switch tag {
	case tagEmpty:
		return NewEmpty(name), nil
	case tagInt:
		return NewInt(name, d.r.ReadVarInt()), d.r.Err()
	case tagIntArray:
		n, err := d.count(1)
		if err != nil {
			return nil, err
		}
		v := make([]int64, n)
		for i := range v {
			v[i] = d.r.ReadVarInt()
		}
		return NewInts(name, v...), d.r.Err()
	case tagFloat:
		return NewFloat(name, d.r.ReadBigEndianFloat()), d.r.Err()
	case tagFloatArray:
		n, err := d.count(4)
		if err != nil {
			return nil, err
		}
		v := make([]float32, n)
		for i := range v {
			v[i] = d.r.ReadBigEndianFloat()
		}
		return NewFloats(name, v...), d.r.Err()
	case tagString:
		return NewString(name, d.indexString()), d.r.Err()
	case tagStringArray:
		n, err := d.count(1)
		if err != nil {
			return nil, err
		}
		v := make([]string, n)
		for i := range v {
			v[i] = d.indexString()
		}
		return NewStrings(name, v...), d.r.Err()
	case tagSub:
		children, err := d.readList()
		if err != nil {
			return nil, err
		}
		return NewSub(name, children...), nil
	case tagSubArray:
		n, err := d.count(1)
		if err != nil {
			return nil, err
		}
		elems := make([]*Node, n)
		for i := range elems {
			children, err := d.readList()
			if err != nil {
				return nil, err
			}
			elems[i] = NewSub(name, children...)
		}
		return NewSubArray(name, elems...), nil
	}
	return nil, fmt.Errorf("%w: 0x%02x for %q at %d", ErrUnknownTag, tag, name, pos)
}
