package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/bits"

	"tlj-scene-extractor/internal/binreader"
)

const (
	ddsMagic      = "DDS "
	ddsHeaderSize = 124

	pfAlphaPixels = 0x1
	pfFourCC      = 0x4
	pfRGB         = 0x40
)

// ErrDDSFormat is returned for DDS pixel formats that cannot be decoded.
var ErrDDSFormat = errors.New("texture: unsupported dds pixel format")

type ddsPixelFormat struct {
	Flags    uint32
	FourCC   string
	BitCount uint32
	Masks    [4]uint32 // r, g, b, a
}

// DecodeDDS decodes the top mip level of a DDS file. DXT1, DXT3, DXT5 and
// uncompressed 24/32-bit RGB(A) surfaces are supported.
func DecodeDDS(data []byte) (image.Image, error) {
	r := binreader.New(data)
	if string(r.ReadBytes(4)) != ddsMagic {
		return nil, errors.New("texture: bad dds magic")
	}
	if size := r.ReadU32(); size != ddsHeaderSize {
		return nil, fmt.Errorf("texture: dds header size %d", size)
	}
	r.ReadU32() // flags
	h := int(r.ReadU32())
	w := int(r.ReadU32())
	r.Seek(76)
	r.ReadU32() // pixel format size
	pf := ddsPixelFormat{Flags: r.ReadU32(), FourCC: string(r.ReadBytes(4)), BitCount: r.ReadU32()}
	for i := range pf.Masks {
		pf.Masks[i] = r.ReadU32()
	}
	r.Seek(4 + ddsHeaderSize)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("texture: dds header: %w", err)
	}
	if w <= 0 || h <= 0 || w > 1<<14 || h > 1<<14 {
		return nil, fmt.Errorf("texture: dds size %dx%d", w, h)
	}

	if pf.Flags&pfFourCC != 0 {
		switch pf.FourCC {
		case "DXT1":
			return decodeBlocks(r, w, h, 8, func(b []byte, px *[16]color.NRGBA) {
				colorBlock(b, px, true)
			})
		case "DXT3":
			return decodeBlocks(r, w, h, 16, func(b []byte, px *[16]color.NRGBA) {
				colorBlock(b[8:], px, false)
				explicitAlpha(b[:8], px)
			})
		case "DXT5":
			return decodeBlocks(r, w, h, 16, func(b []byte, px *[16]color.NRGBA) {
				colorBlock(b[8:], px, false)
				interpolatedAlpha(b[:8], px)
			})
		}
		return nil, fmt.Errorf("%w: %q", ErrDDSFormat, pf.FourCC)
	}
	if pf.Flags&pfRGB != 0 && (pf.BitCount == 24 || pf.BitCount == 32) {
		return decodeMasked(r, w, h, pf)
	}
	return nil, fmt.Errorf("%w: flags %#x, %d bits", ErrDDSFormat, pf.Flags, pf.BitCount)
}

func decodeBlocks(r *binreader.Reader, w, h, blockSize int, decode func([]byte, *[16]color.NRGBA)) (image.Image, error) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	var px [16]color.NRGBA
	for by := 0; by < h; by += 4 {
		for bx := 0; bx < w; bx += 4 {
			block := r.ReadBytes(blockSize)
			if r.Err() != nil {
				return nil, fmt.Errorf("texture: dds data: %w", r.Err())
			}
			decode(block, &px)
			for i, c := range px {
				x, y := bx+i%4, by+i/4
				if x < w && y < h {
					img.SetNRGBA(x, y, c)
				}
			}
		}
	}
	return img, nil
}

func rgb565(v uint16) color.NRGBA {
	r, g, b := uint8(v>>11&0x1f), uint8(v>>5&0x3f), uint8(v&0x1f)
	return color.NRGBA{R: r<<3 | r>>2, G: g<<2 | g>>4, B: b<<3 | b>>2, A: 0xff}
}

func mix(a, b color.NRGBA, wa, wb, d int) color.NRGBA {
	f := func(x, y uint8) uint8 { return uint8((int(x)*wa + int(y)*wb) / d) }
	return color.NRGBA{R: f(a.R, b.R), G: f(a.G, b.G), B: f(a.B, b.B), A: 0xff}
}

// colorBlock decodes the 8-byte BC1 color half. In DXT1 mode c0 <= c1 selects
// the three-color palette with transparent black.
func colorBlock(b []byte, px *[16]color.NRGBA, dxt1 bool) {
	v0 := uint16(b[0]) | uint16(b[1])<<8
	v1 := uint16(b[2]) | uint16(b[3])<<8
	c0, c1 := rgb565(v0), rgb565(v1)
	var pal [4]color.NRGBA
	pal[0], pal[1] = c0, c1
	if v0 > v1 || !dxt1 {
		pal[2] = mix(c0, c1, 2, 1, 3)
		pal[3] = mix(c0, c1, 1, 2, 3)
	} else {
		pal[2] = mix(c0, c1, 1, 1, 2)
	}
	idx := uint32(b[4]) | uint32(b[5])<<8 | uint32(b[6])<<16 | uint32(b[7])<<24
	for i := range px {
		px[i] = pal[idx>>(2*i)&3]
	}
}

func explicitAlpha(b []byte, px *[16]color.NRGBA) {
	for i := range px {
		a := b[i/2] >> (4 * (i % 2)) & 0xf
		px[i].A = a * 17
	}
}

func interpolatedAlpha(b []byte, px *[16]color.NRGBA) {
	a0, a1 := int(b[0]), int(b[1])
	var pal [8]uint8
	pal[0], pal[1] = uint8(a0), uint8(a1)
	if a0 > a1 {
		for i := 1; i < 7; i++ {
			pal[i+1] = uint8(((7-i)*a0 + i*a1) / 7)
		}
	} else {
		for i := 1; i < 5; i++ {
			pal[i+1] = uint8(((5-i)*a0 + i*a1) / 5)
		}
		pal[6], pal[7] = 0, 0xff
	}
	var idx uint64
	for i := 0; i < 6; i++ {
		idx |= uint64(b[2+i]) << (8 * i)
	}
	for i := range px {
		px[i].A = pal[idx>>(3*i)&7]
	}
}

func decodeMasked(r *binreader.Reader, w, h int, pf ddsPixelFormat) (image.Image, error) {
	step := int(pf.BitCount / 8)
	data := r.ReadBytes(w * h * step)
	if r.Err() != nil {
		return nil, fmt.Errorf("texture: dds data: %w", r.Err())
	}
	hasAlpha := pf.Flags&pfAlphaPixels != 0 && pf.Masks[3] != 0

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		var v uint32
		for k := 0; k < step; k++ {
			v |= uint32(data[i*step+k]) << (8 * k)
		}
		c := color.NRGBA{
			R: maskBits(v, pf.Masks[0]),
			G: maskBits(v, pf.Masks[1]),
			B: maskBits(v, pf.Masks[2]),
			A: 0xff,
		}
		if hasAlpha {
			c.A = maskBits(v, pf.Masks[3])
		}
		img.Pix[i*4], img.Pix[i*4+1], img.Pix[i*4+2], img.Pix[i*4+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

// maskBits extracts the bits under mask and scales them to 8 bits.
func maskBits(v, mask uint32) uint8 {
	if mask == 0 {
		return 0
	}
	shift := bits.TrailingZeros32(mask)
	width := bits.OnesCount32(mask)
	x := uint64(v&mask) >> shift
	full := uint64(1)<<width - 1
	return uint8(x * 255 / full)
}
