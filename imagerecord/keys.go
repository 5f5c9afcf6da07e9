package imagerecord

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"featurestore/types"

	"github.com/pkg/errors"
)

type keysDocument struct {
	XMLName   xml.Name      `xml:"image"`
	Keypoints keypointsNode `xml:"keypoints"`
}

type keypointsNode struct {
	KP []keypointNode `xml:"kp"`
}

// keypointNode keeps every field as text so the number formatting is ours.
// The index element is written for readers of the file but ignored on
// decode; document order defines the keypoint index.
type keypointNode struct {
	Index    string `xml:"index"`
	Angle    string `xml:"angle"`
	ClassID  string `xml:"class_id"`
	Octave   string `xml:"octave"`
	Pt       string `xml:"pt"`
	Response string `xml:"response"`
	Size     string `xml:"size"`
}

// EncodeKeypoints writes keypoints as an indented <image><keypoints> document
// without an XML declaration
func EncodeKeypoints(w io.Writer, keypoints []types.Keypoint) error {
	doc := keysDocument{Keypoints: keypointsNode{KP: make([]keypointNode, len(keypoints))}}
	for i, kp := range keypoints {
		doc.Keypoints.KP[i] = keypointNode{
			Index:    strconv.Itoa(i),
			Angle:    formatFloat(kp.Angle),
			ClassID:  strconv.Itoa(kp.ClassID),
			Octave:   strconv.Itoa(kp.Octave),
			Pt:       formatFloat(kp.X) + " " + formatFloat(kp.Y),
			Response: formatFloat(kp.Response),
			Size:     formatFloat(kp.Size),
		}
	}
	return writeIndented(w, doc)
}

// DecodeKeypoints reads a keys document. Keypoints are returned in document order.
func DecodeKeypoints(r io.Reader) ([]types.Keypoint, error) {
	var doc keysDocument
	if err := newDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "malformed keys document")
	}

	keypoints := make([]types.Keypoint, 0, len(doc.Keypoints.KP))
	for i, node := range doc.Keypoints.KP {
		kp, err := node.keypoint()
		if err != nil {
			return nil, errors.Wrapf(err, "kp %d", i)
		}
		keypoints = append(keypoints, kp)
	}
	return keypoints, nil
}

func (n keypointNode) keypoint() (types.Keypoint, error) {
	var kp types.Keypoint
	var err error

	if kp.Angle, err = parseFloatField("angle", n.Angle); err != nil {
		return kp, err
	}
	if kp.ClassID, err = parseIntField("class_id", n.ClassID); err != nil {
		return kp, err
	}
	if kp.Octave, err = parseIntField("octave", n.Octave); err != nil {
		return kp, err
	}
	coords := strings.Fields(n.Pt)
	if len(coords) != 2 {
		return kp, errors.Errorf("pt: want two coordinates, got %q", n.Pt)
	}
	if kp.X, err = parseFloatField("pt x", coords[0]); err != nil {
		return kp, err
	}
	if kp.Y, err = parseFloatField("pt y", coords[1]); err != nil {
		return kp, err
	}
	if kp.Response, err = parseFloatField("response", n.Response); err != nil {
		return kp, err
	}
	if kp.Size, err = parseFloatField("size", n.Size); err != nil {
		return kp, err
	}
	return kp, nil
}

func parseFloatField(name, text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", name)
	}
	return v, nil
}

func parseIntField(name, text string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, errors.Wrapf(err, "%s", name)
	}
	return v, nil
}

// formatFloat writes the shortest text that parses back to v, keeping a
// trailing ".0" on integral values
func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// newDecoder accepts documents whose declaration names ASCII or UTF-8.
// Encoder output has no declaration, but hand edited files often do.
func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		switch strings.ToLower(label) {
		case "us-ascii", "ascii", "utf-8", "utf8":
			return input, nil
		}
		return nil, errors.Errorf("unsupported encoding %q", label)
	}
	return d
}

func writeIndented(w io.Writer, doc interface{}) error {
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	out = append(out, '\n')
	_, err = w.Write(out)
	return err
}
