package texture

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlj-scene-extractor/internal/bundle"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodePNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})

	img, err := Decode("a.png", encodePNG(t, src))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 128}, img.NRGBAAt(1, 0))
}

func TestDecodeTGAByExtension(t *testing.T) {
	head := make([]byte, 18)
	head[2] = 2 // uncompressed true color
	binary.LittleEndian.PutUint16(head[12:], 1)
	binary.LittleEndian.PutUint16(head[14:], 1)
	head[16] = 24
	// one BGR pixel, then room for the footer probe
	data := append(head, 0x30, 0x20, 0x10)
	data = append(data, make([]byte, 26)...)

	img, err := Decode(`Tex\Stone.TGA`, data)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}, img.NRGBAAt(0, 0))
}

func TestDecodeUnknown(t *testing.T) {
	_, err := Decode("a.png", []byte("not an image"))
	assert.Error(t, err)
}

type nmlMip struct {
	rw, rh, aw int32
	alpha      []uint16 // aw * ah values
	rgb        []uint16 // rw * rh values
}

func buildNML(version int32, mips ...nmlMip) []byte {
	buf := append([]byte(nil), nmlMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(version))
	buf = binary.LittleEndian.AppendUint32(buf, 4)
	buf = binary.LittleEndian.AppendUint32(buf, 4)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(mips)))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	for _, m := range mips {
		length := 2 * (len(m.alpha) + len(m.rgb))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.rw))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.rh))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(m.aw))
		ah := len(m.alpha) / int(m.aw)
		line := len(m.rgb) / ah
		for y := 0; y < ah; y++ {
			for _, v := range m.alpha[y*int(m.aw) : (y+1)*int(m.aw)] {
				buf = binary.LittleEndian.AppendUint16(buf, v)
			}
			for _, v := range m.rgb[y*line : (y+1)*line] {
				buf = binary.LittleEndian.AppendUint16(buf, v)
			}
		}
	}
	return buf
}

func filled(n int, v uint16) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDecodeNMLFlat(t *testing.T) {
	data := buildNML(1, nmlMip{rw: 4, rh: 4, aw: 2, alpha: filled(4, 0xffff), rgb: filled(16, 0)})
	require.True(t, IsNML(data))

	img, err := Decode("floor_nml.dds", data)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
	want := color.NRGBA{R: 127, G: 127, B: 255, A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, want, img.NRGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}
}

func TestDecodeNMLSlope(t *testing.T) {
	rgb := make([]uint16, 16)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			rgb[x+y*4] = uint16(x*0x40) << 8
		}
	}
	img, err := DecodeNML(buildNML(1, nmlMip{rw: 4, rh: 4, aw: 2, alpha: filled(4, 0), rgb: rgb}))
	require.NoError(t, err)

	c := img.NRGBAAt(1, 1)
	assert.Less(t, c.R, uint8(127), "height rising along x tilts the normal to -x")
	assert.Equal(t, uint8(127), c.G)
	assert.Zero(t, c.A)
	assert.Equal(t, c, img.NRGBAAt(0, 1), "border copies its neighbour")
}

func TestDecodeNMLErrors(t *testing.T) {
	_, err := DecodeNML([]byte("STFU"))
	assert.ErrorIs(t, err, ErrNotNML)

	_, err = DecodeNML(buildNML(2, nmlMip{rw: 4, rh: 4, aw: 2, alpha: filled(4, 0), rgb: filled(16, 0)}))
	assert.Error(t, err)

	_, err = DecodeNML(buildNML(1))
	assert.ErrorIs(t, err, ErrNoMip)

	// alpha plane wider than the height plane
	_, err = DecodeNML(buildNML(1, nmlMip{rw: 1, rh: 1, aw: 4, alpha: filled(4, 0), rgb: filled(1, 0)}))
	assert.ErrorIs(t, err, ErrNoMip)

	full := buildNML(1, nmlMip{rw: 4, rh: 4, aw: 2, alpha: filled(4, 0), rgb: filled(16, 0)})
	_, err = DecodeNML(full[:len(full)-6])
	assert.Error(t, err)
}

func ddsHeader(w, h uint32, pfFlags uint32, fourCC string, bitCount uint32, masks [4]uint32) []byte {
	buf := make([]byte, 128)
	copy(buf, ddsMagic)
	binary.LittleEndian.PutUint32(buf[4:], ddsHeaderSize)
	binary.LittleEndian.PutUint32(buf[12:], h)
	binary.LittleEndian.PutUint32(buf[16:], w)
	binary.LittleEndian.PutUint32(buf[76:], 32)
	binary.LittleEndian.PutUint32(buf[80:], pfFlags)
	copy(buf[84:88], fourCC)
	binary.LittleEndian.PutUint32(buf[88:], bitCount)
	for i, m := range masks {
		binary.LittleEndian.PutUint32(buf[92+4*i:], m)
	}
	return buf
}

func TestDecodeDDSDXT1(t *testing.T) {
	head := ddsHeader(4, 4, pfFourCC, "DXT1", 0, [4]uint32{})
	red := append(append([]byte(nil), head...), 0x00, 0xf8, 0x1f, 0x00, 0, 0, 0, 0)
	blue := append(append([]byte(nil), head...), 0x00, 0xf8, 0x1f, 0x00, 0x55, 0x55, 0x55, 0x55)

	img, err := Decode("wall.dds", red)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(3, 3))

	img, err = Decode("wall.dds", blue)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 2))
}

func TestDecodeDDSUncompressed(t *testing.T) {
	masks := [4]uint32{0x00ff0000, 0x0000ff00, 0x000000ff, 0xff000000}
	data := append(ddsHeader(1, 1, pfRGB|pfAlphaPixels, "", 32, masks), 0x30, 0x20, 0x10, 0x80)

	img, err := Decode("sky.dds", data)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0x80}, img.NRGBAAt(0, 0))
}

func TestDecodeDDSUnsupported(t *testing.T) {
	data := append(ddsHeader(4, 4, pfFourCC, "ATI2", 0, [4]uint32{}), make([]byte, 16)...)
	_, err := DecodeDDS(data)
	assert.ErrorIs(t, err, ErrDDSFormat)

	_, err = DecodeDDS(ddsHeader(4, 4, pfFourCC, "DXT5", 0, [4]uint32{}))
	assert.Error(t, err, "missing block data")
}

func TestAlphaMaskPath(t *testing.T) {
	dir := filepath.Join("out", "textures")
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"lampglow.webp", "lampglow_alpha.png", true},
		{"win_big_02.png", "win_big_02_alpha.png", true},
		{"plant_ivy_nml.webp", "plant_ivy_alpha.png", true},
		{"leaf.webp", "", false},
		{"wall_nml.webp", "", false},
	}
	for _, tt := range tests {
		got, ok := AlphaMaskPath(filepath.Join(dir, tt.in))
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, filepath.Join(dir, tt.want), got, tt.in)
		}
	}
}

func TestAverageColor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 100, B: 50})

	c := NewCache()
	c.Put("glow.png", img)
	got, err := c.AverageColor("glow.png")
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{127.5, 50, 25}, got)

	_, err = c.AverageColor(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

// dirExtractor serves archive members from memory.
type dirExtractor struct {
	dir   string
	files map[string][]byte
	calls int
}

func (d *dirExtractor) OutputPath(name string) string {
	return filepath.Join(d.dir, filepath.FromSlash(name))
}

func (d *dirExtractor) TryExtract(name string) (bool, error) {
	d.calls++
	data, ok := d.files[name]
	if !ok {
		return false, nil
	}
	dst := d.OutputPath(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, err
	}
	return true, os.WriteFile(dst, data, 0644)
}

func glowTexture(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 64})
	return encodePNG(t, img)
}

func TestExporterProcessPart(t *testing.T) {
	root := t.TempDir()
	src := &dirExtractor{
		dir:   filepath.Join(root, "extracted"),
		files: map[string][]byte{"tex/lampglow.png": glowTexture(t)},
	}
	exp := NewExporter(src, filepath.Join(root, "textures", "japan_streets"), FormatPNG)

	part := &bundle.MeshPart{Textures: []string{"tex/lampglow.png", "tex/missing.png"}}
	require.NoError(t, exp.ProcessPart(part))

	want := filepath.Join(root, "textures", "japan_streets", "tex", "lampglow.png")
	assert.Equal(t, []string{want}, part.Textures)
	assert.Equal(t, filepath.Join(root, "textures", "japan_streets", "tex", "lampglow_alpha.png"), part.AlphaTexture)

	mask, err := imgio.Open(part.AlphaTexture)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), color.GrayModel.Convert(mask.At(0, 0)).(color.Gray).Y)
	assert.Equal(t, uint8(64), color.GrayModel.Convert(mask.At(1, 1)).(color.Gray).Y)

	// an existing export is reused without touching the archives
	calls := src.calls
	again := &bundle.MeshPart{Textures: []string{"tex/lampglow.png"}}
	require.NoError(t, NewExporter(src, filepath.Join(root, "textures", "japan_streets"), FormatPNG).ProcessPart(again))
	assert.Equal(t, calls, src.calls)
	assert.Equal(t, []string{want}, again.Textures)
	assert.Equal(t, part.AlphaTexture, again.AlphaTexture)
}

func TestExporterWebP(t *testing.T) {
	root := t.TempDir()
	src := &dirExtractor{
		dir:   filepath.Join(root, "extracted"),
		files: map[string][]byte{`tex\Wall.png`: glowTexture(t)},
	}
	exp := NewExporter(src, filepath.Join(root, "out"), FormatWebP)

	dst, err := exp.Export(`tex\Wall.png`)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "out", "tex", "Wall.webp"), dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))

	// the decoded source stays cached under the exported path
	c, err := exp.Cache().AverageColor(dst)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{255, 255, 255}, c)
}

func TestExporterOutputPathStaysInside(t *testing.T) {
	exp := NewExporter(&dirExtractor{}, "out", FormatPNG)
	assert.Equal(t, filepath.Join("out", "evil.png"), exp.OutputPath(`..\..\evil.dds`))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatWebP, f)
	f, err = ParseFormat("PNG")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)
	_, err = ParseFormat("jpeg")
	assert.Error(t, err)
}
