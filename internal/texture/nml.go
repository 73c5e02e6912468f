package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"tlj-scene-extractor/internal/binreader"
)

// nmlMagic opens every NML height map.
var nmlMagic = []byte{0x53, 0x54, 0x46, 0x55, 0x34, 0x9a, 0x22, 0x44, 0, 0, 0, 0}

const nmlVersion = 1

var (
	// ErrNotNML is returned when data does not start with the NML magic.
	ErrNotNML = errors.New("texture: not an nml image")

	// ErrNoMip is returned when an NML file has no mip level with an alpha
	// plane that fits its height plane.
	ErrNoMip = errors.New("texture: no usable nml mip level")
)

// flatNormal fills pixels outside the image, a normal pointing straight out.
var flatNormal = color.NRGBA{R: 0x80, G: 0x80, B: 0xff, A: 0xff}

// IsNML reports whether data starts with the NML magic.
func IsNML(data []byte) bool {
	return bytes.HasPrefix(data, nmlMagic)
}

// plane is one 16-bit channel plane of an NML mip level. The high byte holds
// height and the low byte a second sample averaged in by med.
type plane struct {
	w, h int
	px   []uint16
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, px: make([]uint16, w*h)}
}

func (p *plane) msb(x, y int) float32 {
	return float32(p.px[x+y*p.w]>>8) / 255
}

func (p *plane) lsb(x, y int) float32 {
	return float32(p.px[x+y*p.w]&0xff) / 255
}

func (p *plane) med(x, y int) float32 {
	return (p.msb(x, y) + p.lsb(x, y)) * 0.5
}

// DecodeNML converts the top mip level of an NML height map into a
// tangent-space normal map with the alpha plane in the alpha channel.
func DecodeNML(data []byte) (*image.NRGBA, error) {
	r := binreader.New(data)
	if !bytes.Equal(r.ReadBytes(len(nmlMagic)), nmlMagic) {
		return nil, ErrNotNML
	}
	if v := r.ReadI32(); v != nmlVersion {
		return nil, fmt.Errorf("texture: nml version %d", v)
	}
	r.ReadI32() // width
	r.ReadI32() // height
	mips := r.ReadI32()
	r.ReadI32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("texture: nml header: %w", err)
	}

	if mips < 1 {
		return nil, ErrNoMip
	}

	// only the top level is converted
	length := int(r.ReadI32())
	rw, rh := int(r.ReadI32()), int(r.ReadI32())
	aw := int(r.ReadI32())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("texture: nml mip: %w", err)
	}
	if rw <= 0 || rh <= 0 || aw <= 0 || int64(rw)*int64(rh)*2 > int64(length) || length > r.Remaining() {
		return nil, fmt.Errorf("texture: nml mip: bad size %dx%d (alpha width %d, %d bytes)", rw, rh, aw, length)
	}
	ah := (length - rw*rh*2) / 2 / aw
	if ah <= 0 {
		return nil, errors.New("texture: nml mip: empty alpha plane")
	}

	rgb, alpha := newPlane(rw, rh), newPlane(aw, ah)
	line := rw * rh / ah
	for y := 0; y < ah; y++ {
		copy(alpha.px[y*aw:], r.ReadU16Table(int32(aw), 0))
		copy(rgb.px[y*line:], r.ReadU16Table(int32(line), 0))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("texture: nml mip: %w", err)
	}
	// alpha planes larger than the height plane come from rotated textures
	if alpha.w > rgb.w || alpha.h > rgb.h {
		return nil, ErrNoMip
	}
	return normalMap(rgb, alpha), nil
}

// normalMap derives per-pixel normals from the height plane by central
// differences. Border pixels repeat their inner neighbour.
func normalMap(rgb, alpha *plane) *image.NRGBA {
	aspect := float32(rgb.w) / float32(rgb.h)
	scaleX, scaleY := aspect, float32(1)
	if aspect < 1 {
		scaleX, scaleY = 1, 1/aspect
	}

	img := image.NewNRGBA(image.Rect(0, 0, rgb.w, rgb.h))
	for i := 1; i < rgb.w-1; i++ {
		for j := 1; j < rgb.h-1; j++ {
			dirI := mgl32.Vec3{2, 0, rgb.msb(i+1, j) - rgb.msb(i-1, j)}
			dirJ := mgl32.Vec3{0, 2, rgb.msb(i, j+1) - rgb.msb(i, j-1)}
			n := dirI.Cross(dirJ)
			n[0] *= scaleX
			n[1] *= scaleY
			n = n.Normalize()
			img.SetNRGBA(i, j, color.NRGBA{
				R: unitByte(n[0]),
				G: unitByte(n[1]),
				B: unitByte(n[2]),
				A: quadFilter(i, j, alpha, rgb.w, rgb.h),
			})
		}
	}

	get := func(x, y int) color.NRGBA {
		if x < 0 || x >= rgb.w || y < 0 || y >= rgb.h {
			return flatNormal
		}
		return img.NRGBAAt(x, y)
	}
	for i := 0; i < rgb.w; i++ {
		img.SetNRGBA(i, 0, get(i, 1))
		img.SetNRGBA(i, rgb.h-1, get(i, rgb.h-2))
	}
	for j := 0; j < rgb.h; j++ {
		img.SetNRGBA(0, j, get(1, j))
		img.SetNRGBA(rgb.w-1, j, get(rgb.w-2, j))
	}
	return img
}

// unitByte maps [-1, 1] onto [0, 255].
func unitByte(c float32) uint8 {
	return uint8((c + 1) * 127.5)
}

// quadFilter bilinearly samples sub at the position of (x, y) in a w by h
// image.
func quadFilter(x, y int, sub *plane, w, h int) uint8 {
	if w == 1 || h == 1 {
		return uint8(255 * sub.med(x*sub.w/w, y*sub.h/h))
	}
	dx := float32(x) * float32(sub.w-1) / float32(w-1)
	dy := float32(y) * float32(sub.h-1) / float32(h-1)
	cx, cy := dx-math32.Floor(dx), dy-math32.Floor(dy)
	x0, x1 := int(math32.Floor(dx)), int(math32.Ceil(dx))
	y0, y1 := int(math32.Floor(dy)), int(math32.Ceil(dy))

	v := (1 - cx) * (1 - cy) * sub.med(x0, y0)
	v += (1 - cx) * cy * sub.med(x0, y1)
	v += cx * (1 - cy) * sub.med(x1, y0)
	v += cx * cy * sub.med(x1, y1)
	return uint8(255 * v)
}
