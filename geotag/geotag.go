// Package geotag reads camera position and attitude from image metadata.
// It never applies a pose to a record; callers pass the result to SetPose.
package geotag

import (
	"fmt"
	"strconv"
	"strings"

	"featurestore/logging"
	"featurestore/types"

	"github.com/barasher/go-exiftool"
)

// Tag names tried in order for each pose field. DJI writes attitude to XMP
// as Flight*Degree; other autopilots use plain Roll/Pitch/Yaw.
var (
	lonTags   = []string{"GPSLongitude"}
	latTags   = []string{"GPSLatitude"}
	altTags   = []string{"AbsoluteAltitude", "GPSAltitude"}
	rollTags  = []string{"FlightRollDegree", "Roll"}
	pitchTags = []string{"FlightPitchDegree", "Pitch"}
	yawTags   = []string{"FlightYawDegree", "Yaw"}
)

// Result is the pose found for one file
type Result struct {
	Path string
	Pose types.Pose
	// HasPosition is false when no GPS coordinates were present
	HasPosition bool
	Err         error
}

// Reader extracts poses through a long running exiftool process
type Reader struct {
	et *exiftool.Exiftool
}

// NewReader starts exiftool with numeric output so coordinates are signed
// decimal degrees
func NewReader() (*Reader, error) {
	et, err := exiftool.NewExiftool(exiftool.NoPrintConversion())
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %v", err)
	}
	return &Reader{et: et}, nil
}

// Close stops the exiftool process
func (r *Reader) Close() error {
	return r.et.Close()
}

// ReadPose returns one result per path, in order. Per file failures are
// carried in Result.Err.
func (r *Reader) ReadPose(paths ...string) []Result {
	infos := r.et.ExtractMetadata(paths...)
	results := make([]Result, len(infos))
	for i, info := range infos {
		results[i] = Result{Path: info.File}
		if info.Err != nil {
			logging.LogWarning("metadata extraction failed for %s: %v", info.File, info.Err)
			results[i].Err = info.Err
			continue
		}
		results[i].Pose, results[i].HasPosition = PoseFromFields(info.Fields)
	}
	return results
}

// PoseFromFields builds a pose from numeric metadata fields. Absent fields
// stay 0.0. The bool reports whether both coordinates were present.
func PoseFromFields(fields map[string]interface{}) (types.Pose, bool) {
	var pose types.Pose
	var hasLon, hasLat bool

	pose.Lon, hasLon = firstFloat(fields, lonTags)
	pose.Lat, hasLat = firstFloat(fields, latTags)
	pose.MSL, _ = firstFloat(fields, altTags)
	pose.Roll, _ = firstFloat(fields, rollTags)
	pose.Pitch, _ = firstFloat(fields, pitchTags)
	pose.Yaw, _ = firstFloat(fields, yawTags)

	return pose, hasLon && hasLat
}

func firstFloat(fields map[string]interface{}, tags []string) (float64, bool) {
	for _, tag := range tags {
		raw, ok := fields[tag]
		if !ok {
			continue
		}
		if v, ok := toFloat(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func toFloat(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
