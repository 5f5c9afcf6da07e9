// Package features wraps the OpenCV detectors and matchers that produce the
// keypoints, descriptors and match candidates stored in image records.
package features

import (
	"fmt"

	"featurestore/types"

	"gocv.io/x/gocv"
)

// Detector finds keypoints in a grayscale image and computes one descriptor
// row per keypoint, in the same order
type Detector interface {
	Detect(img gocv.Mat) ([]types.Keypoint, gocv.Mat, error)
	Close() error
}

// DefaultMaxFeatures is the keypoint cap used when none is configured
const DefaultMaxFeatures = 2000

// ORBDetector detects ORB keypoints with 32 byte binary descriptors
type ORBDetector struct {
	orb gocv.ORB
}

// NewORBDetector creates an ORB detector retaining at most maxFeatures
// keypoints. A non positive maxFeatures selects DefaultMaxFeatures.
func NewORBDetector(maxFeatures int) *ORBDetector {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &ORBDetector{
		orb: gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20),
	}
}

// Detect runs detection and description over the whole image. The returned
// Mat is owned by the caller.
func (d *ORBDetector) Detect(img gocv.Mat) ([]types.Keypoint, gocv.Mat, error) {
	if img.Empty() {
		return nil, gocv.NewMat(), fmt.Errorf("cannot detect features in an empty image")
	}

	mask := gocv.NewMat()
	defer mask.Close()

	kps, des := d.orb.DetectAndCompute(img, mask)
	if len(kps) != des.Rows() && !(len(kps) == 0 && des.Empty()) {
		des.Close()
		return nil, gocv.NewMat(), fmt.Errorf("detector returned %d keypoints but %d descriptors", len(kps), des.Rows())
	}
	return FromGoCV(kps), des, nil
}

// Close releases the OpenCV detector
func (d *ORBDetector) Close() error {
	return d.orb.Close()
}
