package imagerecord

import (
	"fmt"
	"image/color"

	"featurestore/features"

	"gocv.io/x/gocv"
)

// DrawStyle selects how keypoints are overlaid on the pixels
type DrawStyle int

const (
	// DrawLocations marks keypoint positions only
	DrawLocations DrawStyle = iota
	// DrawRich draws circles scaled by size with an orientation tick
	DrawRich
)

func (s DrawStyle) flag() gocv.DrawMatchesFlag {
	if s == DrawRich {
		return gocv.DrawRichKeyPoints
	}
	return gocv.DrawDefault
}

var keypointColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// RenderKeypoints draws the keypoints over the pixel buffer into a new Mat
// owned by the caller. Pixels and keypoints must already have been loaded;
// nothing is loaded here.
func (r *ImageRecord) RenderKeypoints(style DrawStyle) (gocv.Mat, error) {
	if r.states[ResourceImage] != Loaded {
		return gocv.Mat{}, fmt.Errorf("%s: pixel buffer not loaded", r.name)
	}
	if r.states[ResourceKeypoints] == NotLoaded {
		return gocv.Mat{}, fmt.Errorf("%s: keypoints not loaded", r.name)
	}

	dst := gocv.NewMat()
	gocv.DrawKeypoints(r.img, features.ToGoCV(r.keypoints), &dst, keypointColor, style.flag())
	return dst, nil
}

// ShowKeypoints opens a window with the rendered keypoints and blocks until
// a key is pressed
func (r *ImageRecord) ShowKeypoints(style DrawStyle) error {
	res, err := r.RenderKeypoints(style)
	if err != nil {
		return err
	}
	defer res.Close()

	window := gocv.NewWindow(r.name)
	defer window.Close()
	window.IMShow(res)
	window.WaitKey(0)
	return nil
}
