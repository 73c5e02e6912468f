package texture

import (
	"errors"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Cache is a concurrency-safe cache of decoded texture files, keyed by path.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*cacheEntry
}

type cacheEntry struct {
	img *image.NRGBA
	err error
}

// NewCache creates an empty texture cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*cacheEntry)}
}

// Get loads and caches the texture at path. Load failures are cached too.
func (c *Cache) Get(path string) (*image.NRGBA, error) {
	// Fast path: read lock
	c.mu.RLock()
	if entry, exists := c.items[path]; exists {
		c.mu.RUnlock()
		return entry.img, entry.err
	}
	c.mu.RUnlock()

	img, err := Load(path)

	// Write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, exists := c.items[path]; exists {
		return entry.img, entry.err
	}
	c.items[path] = &cacheEntry{img: img, err: err}
	return img, err
}

// Put stores an already decoded image for path.
func (c *Cache) Put(path string, img *image.NRGBA) {
	c.mu.Lock()
	c.items[path] = &cacheEntry{img: img}
	c.mu.Unlock()
}

// AverageColor returns the mean RGB of the texture at path, each channel in
// 0..255. Alpha is ignored.
func (c *Cache) AverageColor(path string) (mgl32.Vec3, error) {
	img, err := c.Get(path)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	return averageColor(img)
}

func averageColor(img *image.NRGBA) (mgl32.Vec3, error) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n <= 0 {
		return mgl32.Vec3{}, errors.New("texture: empty image")
	}
	var sum [3]uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			sum[0] += uint64(row[x*4])
			sum[1] += uint64(row[x*4+1])
			sum[2] += uint64(row[x*4+2])
		}
	}
	return mgl32.Vec3{
		float32(sum[0]) / float32(n),
		float32(sum[1]) / float32(n),
		float32(sum[2]) / float32(n),
	}, nil
}
