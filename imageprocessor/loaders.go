// Package imageprocessor loads survey rasters as single channel grayscale
// gocv matrices.
package imageprocessor

import (
	"fmt"
	"os"
	"slices"

	"gocv.io/x/gocv"
)

// ImageLoader decodes one family of raster formats
type ImageLoader interface {
	// CanLoad reports whether the loader decodes the format of path
	CanLoad(path string) bool

	// LoadImage loads an image and returns it as an 8-bit grayscale Mat
	LoadImage(path string) (gocv.Mat, error)
}

// BaseImageLoader holds the formats a loader accepts and the OpenCV read
// shared by all of them
type BaseImageLoader struct {
	SupportedFormats []FormatType
}

// CanLoad checks the extension of path against the loader's formats. It does
// not touch the file.
func (l *BaseImageLoader) CanLoad(path string) bool {
	return slices.Contains(l.SupportedFormats, GetFileFormat(path))
}

// DefaultLoadImage reads path through OpenCV in grayscale mode
func (l *BaseImageLoader) DefaultLoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), newImageLoadError("failed to decode image", path)
	}
	return img, nil
}

// hasFileContent checks if a file exists and has a non-zero size
func hasFileContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// newImageLoadError creates a standardized error for image loading failures
func newImageLoadError(message, path string) error {
	return fmt.Errorf("%s: %s", message, path)
}
