package imagery

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string, w, h int) {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{40, 80, 120, 255})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, name)))
}

func TestLoaderSize(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, dir, "a.png", 120, 80)

	l := NewLoader(dir, time.Minute)
	size, err := l.Size("a.png")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 120, Height: 80}, size)

	// served from cache after the file is gone
	require.NoError(t, os.Remove(filepath.Join(dir, "a.png")))
	size, err = l.Size("a.png")
	require.NoError(t, err)
	assert.Equal(t, 120, size.Width)
}

func TestLoaderSizeWebP(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "b.webp"))
	require.NoError(t, err)
	require.NoError(t, webp.Encode(f, imaging.New(64, 32, color.White), &webp.Options{Lossless: true}))
	require.NoError(t, f.Close())

	size, err := NewLoader(dir, 0).Size("b.webp")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 64, Height: 32}, size)

	img, err := NewLoader(dir, 0).Load("b.webp")
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestLoaderMissing(t *testing.T) {
	l := NewLoader(t.TempDir(), 0)

	_, err := l.Size("nope.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Load("nope.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoaderNestedPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeImage(t, filepath.Join(dir, "sub"), "c.jpg", 10, 20)

	size, err := NewLoader(dir, 0).Size("sub/c.jpg")
	require.NoError(t, err)
	assert.Equal(t, Size{Width: 10, Height: 20}, size)
}

func TestOpenGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestEncodeBase64Downsizes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 400, 200))

	b64, err := EncodeBase64(img, 100, 80)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}
