package texture

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/channel"
	"github.com/anthonynsimon/bild/imgio"
)

// Nearly every texture carries an alpha channel, but only materials whose
// file names contain one of these markers are rendered transparent.
var (
	diffuseAlphaMarkers = []string{
		"glow",
		"win_big",
		"japan_streets_background",
		"sun",
		"branches_winter",
		"jiva_corridor_glass",
		"jdr_gate",
	}

	// normal maps whose alpha holds the coverage of the matching diffuse
	nmlAlphaMarkers = []string{
		"plant_ivy",
		"leaf",
		"jdr_flowers",
		"puddles",
		"casa_grass",
	}
)

const nmlSuffix = "_nml"

// AlphaMaskPath returns the file an alpha mask for the exported texture
// should be written to, or false if the texture is not transparent. Masks
// taken from a normal map are named after the diffuse texture.
func AlphaMaskPath(exported string) (string, bool) {
	dir, file := filepath.Split(exported)
	stem := strings.TrimSuffix(file, filepath.Ext(file))

	if containsAny(file, diffuseAlphaMarkers) {
		return filepath.Join(dir, stem+"_alpha.png"), true
	}
	if containsAny(file, nmlAlphaMarkers) && strings.Contains(exported, "nml") {
		if i := strings.Index(stem, nmlSuffix); i >= 0 {
			stem = stem[:i]
		}
		return filepath.Join(dir, stem+"_alpha.png"), true
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WriteAlphaMask writes the alpha channel of img to dst as a grayscale PNG.
func WriteAlphaMask(img image.Image, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("texture: create %s: %w", filepath.Dir(dst), err)
	}
	mask := channel.Extract(img, channel.Alpha)
	if err := imgio.Save(dst, mask, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("texture: write mask %s: %w", dst, err)
	}
	return nil
}
