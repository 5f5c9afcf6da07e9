package imageprocessor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// ImageLoaderRegistry maintains a registry of image loaders keyed by extension
type ImageLoaderRegistry struct {
	loaders map[string]ImageLoader
	mutex   sync.RWMutex
}

// NewImageLoaderRegistry creates a new image loader registry
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}

	standardLoader := NewStandardImageLoader()
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".bmp", ".webp", ".pgm", ".ppm"} {
		registry.RegisterLoader(ext, standardLoader)
	}

	tiffLoader := NewTiffImageLoader()
	registry.RegisterLoader(".tif", tiffLoader)
	registry.RegisterLoader(".tiff", tiffLoader)

	registry.RegisterLoader(".dng", NewRawImageLoader())

	return registry
}

// RegisterLoader registers a new loader for a specific file extension
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader registered for the extension of path, or nil
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.loaders[strings.ToLower(filepath.Ext(path))]
}

// LoadImage loads an image using the loader registered for its extension.
// Extensions without a loader that accepts them are reported, never guessed.
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.NewMat(), fmt.Errorf("image not accessible: %w", err)
	}
	loader := r.GetLoader(path)
	if loader == nil || !loader.CanLoad(path) {
		return gocv.NewMat(), fmt.Errorf("no suitable loader found for: %s", path)
	}
	return loader.LoadImage(path)
}

var (
	defaultRegistry     *ImageLoaderRegistry
	defaultRegistryOnce sync.Once
)

// LoadGrayscale decodes path with the shared default registry
func LoadGrayscale(path string) (gocv.Mat, error) {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewImageLoaderRegistry()
	})
	return defaultRegistry.LoadImage(path)
}
