// Package texture decodes the texture files referenced by bundle mesh parts
// and re-encodes them for downstream tools.
package texture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load reads a texture file and returns it as an NRGBA image.
func Load(path string) (*image.NRGBA, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("texture: read %s: %w", path, err)
	}
	return Decode(path, raw)
}

// Decode decodes data, using name only to pick a codec when the content does
// not identify itself.
func Decode(name string, data []byte) (*image.NRGBA, error) {
	if IsNML(data) {
		img, err := DecodeNML(data)
		if err != nil {
			return nil, fmt.Errorf("texture: decode %s: %w", name, err)
		}
		return img, nil
	}

	var (
		img image.Image
		err error
	)
	// TGA has no magic, so image.Decode cannot sniff it reliably.
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tga":
		img, err = tga.Decode(bytes.NewReader(data))
	case ".dds":
		img, err = DecodeDDS(data)
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("texture: decode %s: %w", name, err)
	}
	return toNRGBA(img), nil
}

// toNRGBA converts any image to NRGBA format.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}
