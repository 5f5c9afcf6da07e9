package imagerecord

import (
	"errors"
	"fmt"
	"slices"

	"featurestore/types"
)

// MatchesAgainst returns match entry index, which pairs this record with
// other. Indices are not checked when a match file is read; they are checked
// here, against both keypoint lists, before the pairs are handed out.
func (r *ImageRecord) MatchesAgainst(index int, other *ImageRecord) ([]types.IndexPair, error) {
	if err := errors.Join(r.LoadMatches(), r.LoadKeypoints(), other.LoadKeypoints()); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(r.matches) {
		return nil, fmt.Errorf("%s: no match entry %d (have %d)", r.name, index, len(r.matches))
	}

	entry := r.matches[index]
	for i, pair := range entry {
		if pair.Query < 0 || pair.Query >= len(r.keypoints) {
			return nil, &MatchIndexError{Image: r.name, Entry: index, Pair: i, Side: "query", Index: pair.Query, Limit: len(r.keypoints)}
		}
		if pair.Train < 0 || pair.Train >= len(other.keypoints) {
			return nil, &MatchIndexError{Image: r.name, Entry: index, Pair: i, Side: "train", Index: pair.Train, Limit: len(other.keypoints)}
		}
	}
	return slices.Clone(entry), nil
}
