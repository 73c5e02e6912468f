// Package vertex decodes interleaved vertex streams described by a bundle
// stream format.
package vertex

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChannelType is a stream-format channel code.
type ChannelType int32

const (
	Unused ChannelType = iota
	Float2
	Float3
	Float4
	Color
)

// NoChannel marks an empty slot in a stream format's channel table.
const NoChannel = -1

var channelNames = [...]string{"Unused", "Float2", "Float3", "Float4", "Color"}

var channelSizes = [...]int{0, 8, 12, 16, 4}

// Size returns the byte size of one value of the channel, or 0 for unknown
// codes.
func (c ChannelType) Size() int {
	if c < 0 || int(c) >= len(channelSizes) {
		return 0
	}
	return channelSizes[c]
}

func (c ChannelType) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "Invalid"
	}
	return channelNames[c]
}

// Layout is one of the recognised interleaved vertex layouts.
type Layout int

const (
	LayoutNone Layout = iota
	PosNormUV
	PosNormColorUV
	PosUV
	PosColorUV
)

var layouts = []struct {
	layout Layout
	types  []ChannelType
}{
	{PosNormUV, []ChannelType{Float3, Float3, Float2}},
	{PosNormColorUV, []ChannelType{Float3, Float3, Color, Float2}},
	{PosUV, []ChannelType{Float3, Float2}},
	{PosColorUV, []ChannelType{Float3, Color, Float2}},
}

// Classify returns the layout of a channel table and its per-vertex byte
// stride. Empty and Unused slots are skipped; the remaining sequence must match
// a known layout exactly.
func Classify(channels []int32) (Layout, int) {
	var types []ChannelType
	stride := 0
	for _, code := range channels {
		if code == NoChannel || ChannelType(code) == Unused {
			continue
		}
		c := ChannelType(code)
		if c.Size() == 0 {
			return LayoutNone, 0
		}
		types = append(types, c)
		stride += c.Size()
	}

	for _, l := range layouts {
		if equalTypes(types, l.types) {
			return l.layout, stride
		}
	}
	return LayoutNone, stride
}

func equalTypes(a, b []ChannelType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Streams holds decoded per-vertex attributes. Normals is empty for layouts
// without a normal channel. UV.y is already flipped to 1 - v.
type Streams struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
}

// Len returns the number of decoded vertices.
func (s Streams) Len() int {
	return len(s.Positions)
}

// Decode splits raw interleaved vertex bytes into attribute arrays. It returns
// false when the channel layout is not one of the recognised ones or the data
// is empty; a trailing partial vertex is ignored.
func Decode(channels []int32, data []byte) (Streams, bool) {
	layout, stride := Classify(channels)
	if layout == LayoutNone || stride == 0 || len(data) < stride {
		return Streams{}, false
	}

	n := len(data) / stride
	s := Streams{
		Positions: make([]mgl32.Vec3, n),
		UVs:       make([]mgl32.Vec2, n),
	}
	hasNormal := layout == PosNormUV || layout == PosNormColorUV
	hasColor := layout == PosNormColorUV || layout == PosColorUV
	if hasNormal {
		s.Normals = make([]mgl32.Vec3, n)
	}

	for i := 0; i < n; i++ {
		v := data[i*stride : (i+1)*stride]
		s.Positions[i] = vec3(v)
		off := 12
		if hasNormal {
			s.Normals[i] = vec3(v[off:])
			off += 12
		}
		if hasColor {
			off += 4 // vertex colour is not kept
		}
		s.UVs[i] = mgl32.Vec2{f32(v[off:]), 1 - f32(v[off+4:])}
	}
	return s, true
}

// Indices reinterprets raw bytes as a little-endian uint16 index array.
func Indices(raw []byte) []uint16 {
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return out
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func vec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{f32(b), f32(b[4:]), f32(b[8:])}
}
