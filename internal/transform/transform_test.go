package transform

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attachstore/internal/domain"
)

func writePNG(t *testing.T, width, height int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))))
	return path
}

func dimensions(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestResizeExactDimensions(t *testing.T) {
	src := writePNG(t, 100, 50)
	dest := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, Resize(40, 30, false)(context.Background(), src, dest, "png"))

	w, h := dimensions(t, dest)
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)
}

func TestResizeKeepAspect(t *testing.T) {
	src := writePNG(t, 100, 50)
	dest := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, Resize(40, 999, true)(context.Background(), src, dest, "png"))

	w, h := dimensions(t, dest)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)
}

func TestResizeRejectsBadDimensions(t *testing.T) {
	src := writePNG(t, 10, 10)
	dest := filepath.Join(t.TempDir(), "out.png")

	require.Error(t, Resize(0, 10, false)(context.Background(), src, dest, "png"))
	require.Error(t, Resize(10, -1, false)(context.Background(), src, dest, "png"))
}

func TestThumbnailCropToFit(t *testing.T) {
	src := writePNG(t, 120, 60)
	dest := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, Thumbnail(32, true)(context.Background(), src, dest, "png"))

	w, h := dimensions(t, dest)
	assert.Equal(t, 32, w)
	assert.Equal(t, 32, h)
}

func TestThumbnailBoundsShortestSide(t *testing.T) {
	src := writePNG(t, 120, 60)
	dest := filepath.Join(t.TempDir(), "out.png")

	require.NoError(t, Thumbnail(30, false)(context.Background(), src, dest, "png"))

	w, h := dimensions(t, dest)
	assert.Equal(t, 60, w)
	assert.Equal(t, 30, h)
}

func TestWatermarkKeepsDimensions(t *testing.T) {
	src := writePNG(t, 200, 100)
	dest := filepath.Join(t.TempDir(), "out.png")

	fn := Watermark("sample", domain.WatermarkBottomRight, 0.5)
	require.NoError(t, fn(context.Background(), src, dest, "png"))

	w, h := dimensions(t, dest)
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
}

func TestTransformEncodesJPEG(t *testing.T) {
	src := writePNG(t, 20, 20)
	dest := filepath.Join(t.TempDir(), "out.jpg")

	require.NoError(t, Resize(10, 10, false)(context.Background(), src, dest, "jpeg"))

	f, err := os.Open(dest)
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestTransformMissingSource(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.png")
	err := Resize(10, 10, false)(context.Background(), filepath.Join(t.TempDir(), "gone.png"), dest, "png")
	require.Error(t, err)
}
