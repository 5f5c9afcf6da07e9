package features

import (
	"featurestore/types"

	"gocv.io/x/gocv"
)

// FromGoCV copies OpenCV keypoints into the stored keypoint form
func FromGoCV(kps []gocv.KeyPoint) []types.Keypoint {
	out := make([]types.Keypoint, len(kps))
	for i, kp := range kps {
		out[i] = types.Keypoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
			ClassID:  kp.ClassID,
		}
	}
	return out
}

// ToGoCV converts stored keypoints for OpenCV drawing and matching calls
func ToGoCV(kps []types.Keypoint) []gocv.KeyPoint {
	out := make([]gocv.KeyPoint, len(kps))
	for i, kp := range kps {
		out[i] = gocv.KeyPoint{
			X:        kp.X,
			Y:        kp.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
			ClassID:  kp.ClassID,
		}
	}
	return out
}
