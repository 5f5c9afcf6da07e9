package imageprocessor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGradientPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestGetFileFormat(t *testing.T) {
	assert.Equal(t, FormatJPEG, GetFileFormat("/survey/DJI_0001.JPG"))
	assert.Equal(t, FormatTIFF, GetFileFormat("ortho.tif"))
	assert.Equal(t, FormatDNG, GetFileFormat("raw.dng"))
	assert.Equal(t, FormatUnknown, GetFileFormat("notes.txt"))
}

func TestIsSurveyImage(t *testing.T) {
	assert.True(t, IsSurveyImage("DJI_0001.jpg"))
	assert.True(t, IsSurveyImage("DJI_0001.tiff"))
	assert.False(t, IsSurveyImage("DJI_0001.ppm"))
	assert.False(t, IsSurveyImage("DJI_0001.keys"))
	assert.False(t, IsSurveyImage("DJI_0001.match"))
	assert.True(t, IsRasterFile("DJI_0001.ppm"))
}

func TestRegistryLoadsGrayscale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradient.png")
	writeGradientPNG(t, path, 40, 30)

	registry := NewImageLoaderRegistry()
	require.NotNil(t, registry.GetLoader(path))
	assert.True(t, registry.GetLoader(path).CanLoad(path))
	assert.Nil(t, registry.GetLoader("x.keys"))

	img, err := registry.LoadImage(path)
	require.NoError(t, err)
	defer img.Close()

	assert.Equal(t, 30, img.Rows())
	assert.Equal(t, 40, img.Cols())
	assert.Equal(t, 1, img.Channels())
}

func TestDecodeGray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gradient.png")
	writeGradientPNG(t, path, 16, 8)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	mat, err := DecodeGray(f)
	require.NoError(t, err)
	defer mat.Close()

	assert.Equal(t, 8, mat.Rows())
	assert.Equal(t, 16, mat.Cols())
	assert.Equal(t, uint8(0), mat.GetUCharAt(0, 0))
}

func TestLoadMissingFile(t *testing.T) {
	img, err := LoadGrayscale(filepath.Join(t.TempDir(), "absent.jpg"))
	defer img.Close()
	assert.Error(t, err)
	assert.True(t, img.Empty())
}

func TestSupportedExtensionsExcludeSidecars(t *testing.T) {
	exts := GetSupportedExtensions()
	assert.Contains(t, exts, ".jpg")
	assert.Contains(t, exts, ".dng")
	assert.NotContains(t, exts, ".ppm")
	assert.IsIncreasing(t, exts)
}

func TestRegistryReportsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("not a raster"), 0644))

	registry := NewImageLoaderRegistry()
	img, err := registry.LoadImage(notes)
	defer img.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable loader found")

	// a loader registered for an extension it does not decode is refused too
	registry.RegisterLoader(".txt", NewTiffImageLoader())
	img2, err := registry.LoadImage(notes)
	defer img2.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable loader found")

	img3, err := registry.LoadImage(filepath.Join(dir, "absent.png"))
	defer img3.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCanLoadIgnoresFileExistence(t *testing.T) {
	loader := NewTiffImageLoader()
	assert.True(t, loader.CanLoad("/nowhere/ortho.TIF"))
	assert.False(t, loader.CanLoad("/nowhere/ortho.jpg"))
}
