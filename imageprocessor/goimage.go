package imageprocessor

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"gocv.io/x/gocv"
)

// DecodeGray decodes any raster registered with the image package and
// returns it as an 8-bit single channel Mat
func DecodeGray(r io.Reader) (gocv.Mat, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return gocv.NewMat(), err
	}

	bounds := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)

	return gocv.ImageGrayToMatGray(gray)
}

func decodeWithGo(path string) (gocv.Mat, error) {
	f, err := os.Open(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer f.Close()

	mat, err := DecodeGray(f)
	if err != nil {
		return gocv.NewMat(), newImageLoadError("failed to decode image ("+err.Error()+")", path)
	}
	return mat, nil
}
