package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"pressing/internal/fileutil"
	"pressing/internal/logging"
	"pressing/internal/services"
)

// Quality is the JPEG quality of every rendition.
const Quality = 95

// Embedded cover sizes.
const (
	DownloadCoverSize = 1500
	PreviewCoverSize  = 300
)

// Rendition decodes src and returns it as a JPEG whose longer side is at most
// size pixels. Images are never scaled up.
func Rendition(src string, size int) ([]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "artwork", "open", src, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "artwork", "decode", src, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Scale(img, size), &jpeg.Options{Quality: Quality}); err != nil {
		return nil, services.Wrap(services.ErrIO, "artwork", "encode", src, err)
	}
	return buf.Bytes(), nil
}

// Scale fits img within size x size, flattened onto a white background.
func Scale(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if size > 0 && (w > size || h > size) {
		if w >= h {
			h = max(1, h*size/w)
			w = size
		} else {
			w = max(1, w*size/h)
			h = size
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Dimensions returns the pixel size of encoded image data.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

type cacheKey struct {
	src  string
	size int
}

type cacheEntry struct {
	once sync.Once
	data []byte
	err  error
}

// Cache memoizes renditions for the lifetime of a run; several tracks and
// formats usually share one cover.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*cacheEntry)}
}

// Rendition returns the cached rendition of src at size, rendering it once.
func (c *Cache) Rendition(src string, size int) ([]byte, error) {
	key := cacheKey{src: src, size: size}
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.data, entry.err = Rendition(src, size)
	})
	return entry.data, entry.err
}

// Renderer writes renditions to disk.
type Renderer struct {
	cache  *Cache
	logger *slog.Logger
}

// NewRenderer builds a Renderer sharing cache, which may be nil.
func NewRenderer(cache *Cache, logger *slog.Logger) *Renderer {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Renderer{cache: cache, logger: logging.NewComponentLogger(logger, "artwork")}
}

// Render writes the rendition of src to dst unless dst is already newer than
// src.
func (r *Renderer) Render(ctx context.Context, src, dst string, size int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if fileutil.IsNewer(dst, src) {
		r.logger.Debug("rendition up to date", logging.String("path", dst))
		return nil
	}
	data, err := r.cache.Rendition(src, size)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(dst, data, 0o644); err != nil {
		return services.Wrap(services.ErrIO, "artwork", "write", dst, err)
	}
	r.logger.Debug("rendition written",
		logging.String("path", dst),
		logging.String("size", fmt.Sprintf("%dpx", size)),
	)
	return nil
}
