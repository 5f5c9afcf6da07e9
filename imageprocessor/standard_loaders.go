package imageprocessor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"featurestore/logging"

	"gocv.io/x/gocv"
)

// StandardImageLoader handles formats OpenCV decodes directly, falling back
// to the Go decoders when the OpenCV build lacks a codec
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatBMP,
				FormatWEBP,
				FormatPNM,
			},
		},
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img, err := l.DefaultLoadImage(path)
	if err == nil {
		return img, nil
	}

	logging.DebugLog("OpenCV could not decode %s, trying Go decoders", path)
	return decodeWithGo(path)
}

// TiffImageLoader specializes in TIFF format loading. Survey orthophotos are
// often tiled or 16-bit TIFFs that some OpenCV builds reject.
type TiffImageLoader struct {
	BaseImageLoader
}

// NewTiffImageLoader creates a new TIFF image loader
func NewTiffImageLoader() *TiffImageLoader {
	return &TiffImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatTIFF},
		},
	}
}

// LoadImage implements specialized loading for TIFF images
func (l *TiffImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if !img.Empty() {
		return img, nil
	}
	img.Close()

	logging.LogInfo("Direct TIFF load failed for %s, trying Go tiff decoder", path)
	mat, err := decodeWithGo(path)
	if err != nil {
		return gocv.NewMat(), newImageLoadError(fmt.Sprintf("failed to load TIFF image (%v)", err), path)
	}
	return mat, nil
}

// RawImageLoader handles DNG files written by survey cameras. It prefers the
// embedded full size preview and falls back to dcraw.
type RawImageLoader struct {
	BaseImageLoader
	TempDir string
}

// NewRawImageLoader creates a new loader for RAW files
func NewRawImageLoader() *RawImageLoader {
	return &RawImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{FormatDNG},
		},
		TempDir: os.TempDir(),
	}
}

// LoadImage converts the RAW file to an intermediate raster and decodes it
func (l *RawImageLoader) LoadImage(path string) (gocv.Mat, error) {
	tempFilename := filepath.Join(l.TempDir, fmt.Sprintf("raw_conv_%d.tiff", time.Now().UnixNano()))
	defer os.Remove(tempFilename)

	methods := []func(string, string) error{
		extractPreviewWithExiftool,
		convertWithDcraw,
	}

	for _, method := range methods {
		if err := method(path, tempFilename); err != nil {
			logging.LogWarning("RAW conversion step failed for %s: %v", path, err)
			continue
		}
		if !hasFileContent(tempFilename) {
			continue
		}
		img := gocv.IMRead(tempFilename, gocv.IMReadGrayScale)
		if !img.Empty() {
			return img, nil
		}
		img.Close()
	}

	// OpenCV reads the first IFD of some DNGs, which is usually a thumbnail
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), newImageLoadError("failed to load RAW image (all conversion methods failed)", path)
	}
	return img, nil
}

// extractPreviewWithExiftool writes the embedded preview of path to outputPath
func extractPreviewWithExiftool(path, outputPath string) error {
	if _, err := exec.LookPath("exiftool"); err != nil {
		return fmt.Errorf("exiftool not available: %v", err)
	}
	return runToFile(outputPath, "exiftool", "-b", "-PreviewImage", path)
}

// convertWithDcraw develops path to a TIFF at outputPath using camera white balance
func convertWithDcraw(path, outputPath string) error {
	if _, err := exec.LookPath("dcraw"); err != nil {
		return fmt.Errorf("dcraw not available: %v", err)
	}
	return runToFile(outputPath, "dcraw", "-T", "-c", "-w", "-q", "3", path)
}

func runToFile(outputPath string, name string, args ...string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %v", err)
	}
	defer outFile.Close()

	cmd := exec.Command(name, args...)
	cmd.Stdout = outFile
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %v, stderr: %s", name, err, stderr.String())
	}
	return nil
}
