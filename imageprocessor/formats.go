package imageprocessor

import (
	"path/filepath"
	"sort"
	"strings"
)

// FormatType represents a known raster format
type FormatType string

// Known raster format constants
const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatTIFF    FormatType = "tiff"
	FormatBMP     FormatType = "bmp"
	FormatWEBP    FormatType = "webp"
	FormatPNM     FormatType = "pnm"
	FormatDNG     FormatType = "dng"
)

// Map of extensions to format types
var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,
	".pgm":  FormatPNM,
	".ppm":  FormatPNM,
	".dng":  FormatDNG,
}

// sidecarExtensions are written next to a survey image and must never be
// mistaken for one, even though .ppm is a raster format.
var sidecarExtensions = map[string]bool{
	".ppm":   true,
	".keys":  true,
	".match": true,
}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	ext := strings.ToLower(filepath.Ext(path))
	format, exists := formatExtensions[ext]
	if !exists {
		return FormatUnknown
	}
	return format
}

// IsRasterFile checks if a file can be decoded as a raster by extension
func IsRasterFile(path string) bool {
	return GetFileFormat(path) != FormatUnknown
}

// IsSurveyImage reports whether path names a source image of a survey
// directory rather than a feature sidecar file
func IsSurveyImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if sidecarExtensions[ext] {
		return false
	}
	return IsRasterFile(path)
}

// GetSupportedExtensions returns the sorted extensions accepted as survey images
func GetSupportedExtensions() []string {
	extensions := make([]string, 0, len(formatExtensions))
	for ext := range formatExtensions {
		if !sidecarExtensions[ext] {
			extensions = append(extensions, ext)
		}
	}
	sort.Strings(extensions)
	return extensions
}
