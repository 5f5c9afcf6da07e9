package project

import (
	"fmt"
	"io"

	"featurestore/imagerecord"

	"gonum.org/v1/gonum/stat"
)

// ImageSummary describes the feature state of one image
type ImageSummary struct {
	Name         string
	Keypoints    int
	Descriptors  int
	MatchedPairs int
	// mean and standard deviation of keypoint responses
	ResponseMean   float64
	ResponseStdDev float64
}

// Summarize reports on r without loading its pixels
func Summarize(r *imagerecord.ImageRecord) (ImageSummary, error) {
	s := ImageSummary{Name: r.Name()}

	keypoints, err := r.Keypoints()
	if err != nil {
		return s, err
	}
	if err := r.LoadDescriptors(); err != nil {
		return s, err
	}
	matches, err := r.Matches()
	if err != nil {
		return s, err
	}

	s.Keypoints = len(keypoints)
	s.Descriptors = r.DescriptorCount()
	s.MatchedPairs = matches.PairCount()

	if len(keypoints) > 0 {
		responses := make([]float64, len(keypoints))
		for i, kp := range keypoints {
			responses[i] = kp.Response
		}
		if len(responses) == 1 {
			s.ResponseMean = responses[0]
		} else {
			s.ResponseMean, s.ResponseStdDev = stat.MeanStdDev(responses, nil)
		}
	}
	return s, nil
}

// Summary reports on every image in project order
func (p *Project) Summary() ([]ImageSummary, error) {
	out := make([]ImageSummary, len(p.records))
	for i, r := range p.records {
		s, err := Summarize(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// PrintSummary writes one line per image followed by the totals
func PrintSummary(w io.Writer, summaries []ImageSummary) {
	var keypoints, pairs int
	for _, s := range summaries {
		fmt.Fprintf(w, "%-32s keypoints=%-6d descriptors=%-6d pairs=%-6d response=%.4g±%.4g\n",
			s.Name, s.Keypoints, s.Descriptors, s.MatchedPairs, s.ResponseMean, s.ResponseStdDev)
		keypoints += s.Keypoints
		pairs += s.MatchedPairs
	}
	fmt.Fprintf(w, "\n%d images, %d keypoints, %d matched pairs\n", len(summaries), keypoints, pairs)
}
