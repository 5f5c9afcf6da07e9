package imagerecord

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Descriptors are stored as a binary PPM raster, one row per keypoint. The
// matrix is expanded to three equal channels on write so every OpenCV PxM
// encoder accepts it, and collapsed back by the grayscale read.

func readDescriptors(path string) (gocv.Mat, error) {
	des := gocv.IMRead(path, gocv.IMReadGrayScale)
	if des.Empty() {
		des.Close()
		return gocv.NewMat(), fmt.Errorf("cannot decode descriptor raster")
	}
	return des, nil
}

func writeDescriptors(path string, des gocv.Mat) error {
	if des.Empty() {
		return fmt.Errorf("descriptor matrix is empty")
	}
	if des.Type() != gocv.MatTypeCV8UC1 {
		return fmt.Errorf("descriptor type %v cannot be stored as an 8-bit raster", des.Type())
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(des, &bgr, gocv.ColorGrayToBGR)

	if !gocv.IMWrite(path, bgr) {
		return fmt.Errorf("raster encoder rejected %dx%d matrix", des.Rows(), des.Cols())
	}
	return nil
}
