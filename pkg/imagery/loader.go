// Package imagery resolves, decodes and measures the images under review.
package imagery

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	gocache "github.com/patrickmn/go-cache"
	_ "golang.org/x/image/webp"
)

// ErrNotFound is returned when an image file does not exist
var ErrNotFound = errors.New("image not found")

// Size is an image's pixel dimensions
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Sizer reports image dimensions by example-relative path
type Sizer interface {
	Size(relPath string) (Size, error)
}

// Loader reads images relative to a root directory
type Loader struct {
	dir   string
	sizes *gocache.Cache
}

// NewLoader creates a Loader rooted at dir. Dimensions are cached for ttl.
func NewLoader(dir string, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Loader{
		dir:   dir,
		sizes: gocache.New(ttl, 2*ttl),
	}
}

// Dir returns the images directory
func (l *Loader) Dir() string { return l.dir }

// Path joins relPath onto the images directory
func (l *Loader) Path(relPath string) string {
	return filepath.Join(l.dir, filepath.FromSlash(relPath))
}

// Size returns the dimensions of an image, reading only its header when the
// format allows it
func (l *Loader) Size(relPath string) (Size, error) {
	if v, ok := l.sizes.Get(relPath); ok {
		return v.(Size), nil
	}

	path := l.Path(relPath)
	size, err := decodeSize(path)
	if err != nil {
		return Size{}, err
	}

	l.sizes.SetDefault(relPath, size)
	return size, nil
}

// Load decodes the full image
func (l *Loader) Load(relPath string) (image.Image, error) {
	return Open(l.Path(relPath))
}

// Open loads an image from a file path with WebP support
func Open(path string) (image.Image, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

func decodeSize(path string) (Size, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Size{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return Size{}, err
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		return Size{Width: cfg.Width, Height: cfg.Height}, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".webp") {
		if _, err := f.Seek(0, 0); err == nil {
			if cfg, err := webp.DecodeConfig(f); err == nil {
				return Size{Width: cfg.Width, Height: cfg.Height}, nil
			}
		}
	}

	img, err := Open(path)
	if err != nil {
		return Size{}, err
	}
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}, nil
}

// EncodeBase64 downsizes img so its longest side is at most maxDim and
// returns it as base64 JPEG for vision models
func EncodeBase64(img image.Image, maxDim, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}
	if quality <= 0 {
		quality = 90
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
