package features

import (
	"fmt"

	"featurestore/types"

	"gocv.io/x/gocv"
)

// Matcher proposes keypoint correspondences between two descriptor sets.
// Query indices refer to the rows of query, train indices to the rows of train.
type Matcher interface {
	Match(query, train gocv.Mat) ([]types.IndexPair, error)
	Close() error
}

// DefaultRatio is Lowe's ratio test threshold
const DefaultRatio = 0.75

// BFMatcher is a brute force Hamming matcher filtered by the ratio test
type BFMatcher struct {
	bf    gocv.BFMatcher
	ratio float64
}

// NewBFMatcher creates a matcher for binary descriptors. A ratio outside
// (0, 1] selects DefaultRatio.
func NewBFMatcher(ratio float64) *BFMatcher {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultRatio
	}
	return &BFMatcher{
		bf:    gocv.NewBFMatcherWithParams(gocv.NormHamming, false),
		ratio: ratio,
	}
}

// Match keeps a nearest neighbour only when it is clearly closer than the
// second nearest
func (m *BFMatcher) Match(query, train gocv.Mat) ([]types.IndexPair, error) {
	pairs := []types.IndexPair{}
	if query.Empty() || train.Empty() {
		return pairs, nil
	}
	if query.Cols() != train.Cols() || query.Type() != train.Type() {
		return nil, fmt.Errorf("descriptor layouts differ: %dx%v vs %dx%v",
			query.Cols(), query.Type(), train.Cols(), train.Type())
	}

	for _, knn := range m.bf.KnnMatch(query, train, 2) {
		if len(knn) < 2 {
			continue
		}
		if knn[0].Distance < m.ratio*knn[1].Distance {
			pairs = append(pairs, types.IndexPair{Query: knn[0].QueryIdx, Train: knn[0].TrainIdx})
		}
	}
	return pairs, nil
}

// Close releases the OpenCV matcher
func (m *BFMatcher) Close() error {
	return m.bf.Close()
}
