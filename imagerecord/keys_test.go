package imagerecord

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"featurestore/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singleKeypointDoc = `<image>
  <keypoints>
    <kp>
      <index>0</index>
      <angle>90.0</angle>
      <class_id>-1</class_id>
      <octave>2</octave>
      <pt>12.5 7.0</pt>
      <response>0.01</response>
      <size>4.2</size>
    </kp>
  </keypoints>
</image>
`

func TestDecodeKeypointsScenario(t *testing.T) {
	kps, err := DecodeKeypoints(strings.NewReader(singleKeypointDoc))
	require.NoError(t, err)
	require.Len(t, kps, 1)

	assert.Equal(t, types.Keypoint{
		X: 12.5, Y: 7.0, Size: 4.2, Angle: 90.0, Response: 0.01, Octave: 2, ClassID: -1,
	}, kps[0])
}

func TestDecodeKeypointsIgnoresIndexField(t *testing.T) {
	doc := strings.Replace(singleKeypointDoc, "<index>0</index>", "<index>41</index>", 1)
	kps, err := DecodeKeypoints(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, kps, 1)
	assert.Equal(t, 12.5, kps[0].X)
}

func TestKeypointsRoundTrip(t *testing.T) {
	want := []types.Keypoint{
		{X: 12.5, Y: 7, Size: 4.2, Angle: 90, Response: 0.01, Octave: 2, ClassID: -1},
		{X: 1023.75, Y: 0.125, Size: 31, Angle: 359.99, Response: 0.000123, Octave: 0, ClassID: 3},
		// SIFT packs layer and octave into one word; it must survive as is
		{X: 3.3333333, Y: 9.87654321, Size: 1.6, Angle: -1, Response: 0, Octave: -16776961, ClassID: -1},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeKeypoints(&buf, want))

	got, err := DecodeKeypoints(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].X, got[i].X, 1e-5)
		assert.InDelta(t, want[i].Y, got[i].Y, 1e-5)
		assert.InDelta(t, want[i].Size, got[i].Size, 1e-5)
		assert.InDelta(t, want[i].Angle, got[i].Angle, 1e-5)
		assert.InDelta(t, want[i].Response, got[i].Response, 1e-5)
		assert.Equal(t, want[i].Octave, got[i].Octave)
		assert.Equal(t, want[i].ClassID, got[i].ClassID)
	}
}

func TestEncodeKeypointsLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeKeypoints(&buf, []types.Keypoint{
		{X: 12.5, Y: 7, Size: 4.2, Angle: 90, Response: 0.01, Octave: 2, ClassID: -1},
	}))
	out := buf.String()

	assert.False(t, strings.HasPrefix(out, "<?xml"))
	assert.True(t, strings.HasPrefix(out, "<image>\n  <keypoints>\n    <kp>\n"))
	assert.Contains(t, out, "<index>0</index>")
	assert.Contains(t, out, "<pt>12.5 7.0</pt>")
	assert.Contains(t, out, "<angle>90.0</angle>")
	assert.Contains(t, out, "<class_id>-1</class_id>")
}

func TestEncodeNoKeypoints(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeKeypoints(&buf, nil))
	assert.Contains(t, buf.String(), "<keypoints></keypoints>")

	kps, err := DecodeKeypoints(&buf)
	require.NoError(t, err)
	assert.Empty(t, kps)
}

func TestDecodeKeypointsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "this is not xml"},
		{"wrong root", "<matches></matches>"},
		{"bad angle", strings.Replace(singleKeypointDoc, "<angle>90.0</angle>", "<angle>ninety</angle>", 1)},
		{"one coordinate", strings.Replace(singleKeypointDoc, "<pt>12.5 7.0</pt>", "<pt>12.5</pt>", 1)},
		{"missing octave", strings.Replace(singleKeypointDoc, "<octave>2</octave>", "", 1)},
		{"float class id", strings.Replace(singleKeypointDoc, "<class_id>-1</class_id>", "<class_id>1.5</class_id>", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeKeypoints(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeKeypointsWithDeclaration(t *testing.T) {
	for _, decl := range []string{
		`<?xml version='1.0' encoding='us-ascii'?>`,
		`<?xml version="1.0" encoding="ASCII"?>`,
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<?xml version="1.0"?>`,
	} {
		t.Run(decl, func(t *testing.T) {
			kps, err := DecodeKeypoints(strings.NewReader(decl + "\n" + singleKeypointDoc))
			require.NoError(t, err)
			require.Len(t, kps, 1)
			assert.Equal(t, 12.5, kps[0].X)
		})
	}
}

func TestDecodeKeypointsUnsupportedEncoding(t *testing.T) {
	doc := `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n" + singleKeypointDoc
	_, err := DecodeKeypoints(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "90.0", formatFloat(90))
	assert.Equal(t, "0.01", formatFloat(0.01))
	assert.Equal(t, "-1.0", formatFloat(-1))
	assert.Equal(t, "NaN", formatFloat(math.NaN()))
}
