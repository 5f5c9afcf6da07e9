package geotag

import (
	"testing"

	"featurestore/types"

	"github.com/stretchr/testify/assert"
)

func TestPoseFromDJIFields(t *testing.T) {
	fields := map[string]interface{}{
		"GPSLongitude":      -93.2465,
		"GPSLatitude":       45.0123,
		"GPSAltitude":       301.2,
		"AbsoluteAltitude":  "+312.45",
		"FlightRollDegree":  "+1.20",
		"FlightPitchDegree": "-2.50",
		"FlightYawDegree":   "+178.30",
		"Roll":              99.0,
	}

	pose, ok := PoseFromFields(fields)
	assert.True(t, ok)
	assert.Equal(t, types.Pose{Lon: -93.2465, Lat: 45.0123, MSL: 312.45, Roll: 1.2, Pitch: -2.5, Yaw: 178.3}, pose)
}

func TestPoseFromGenericFields(t *testing.T) {
	pose, ok := PoseFromFields(map[string]interface{}{
		"GPSLongitude": 10.5,
		"GPSLatitude":  int64(-3),
		"GPSAltitude":  120.0,
		"Yaw":          45.0,
	})
	assert.True(t, ok)
	assert.Equal(t, types.Pose{Lon: 10.5, Lat: -3, MSL: 120, Yaw: 45}, pose)
}

func TestPoseWithoutPosition(t *testing.T) {
	pose, ok := PoseFromFields(map[string]interface{}{
		"GPSLatitude": 45.0,
		"Make":        "DJI",
	})
	assert.False(t, ok)
	assert.Equal(t, 45.0, pose.Lat)
	assert.Equal(t, 0.0, pose.Lon)
}

func TestUnparsableFieldIsSkipped(t *testing.T) {
	pose, _ := PoseFromFields(map[string]interface{}{
		"FlightYawDegree": "north",
		"Yaw":             12.0,
	})
	assert.Equal(t, 12.0, pose.Yaw)
}
