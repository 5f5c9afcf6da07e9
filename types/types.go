package types

import "fmt"

// Keypoint is a detected interest point. Its position in a keypoint slice is
// its identity: descriptors and match pairs refer to it by that index.
type Keypoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
	// Octave is detector specific and may be bit packed; it is stored verbatim.
	Octave  int `json:"octave"`
	ClassID int `json:"class_id"`
}

// UnsetClassID marks a keypoint that carries no class or cluster id
const UnsetClassID = -1

// NewKeypoint returns a keypoint at (x, y) with the class id unset
func NewKeypoint(x, y, size float64) Keypoint {
	return Keypoint{X: x, Y: y, Size: size, Angle: -1, ClassID: UnsetClassID}
}

// IndexPair links keypoint Query of one image to keypoint Train of another
type IndexPair struct {
	Query int
	Train int
}

func (p IndexPair) String() string {
	return fmt.Sprintf("(%d, %d)", p.Query, p.Train)
}

// Swap returns the pair as seen from the other image
func (p IndexPair) Swap() IndexPair {
	return IndexPair{Query: p.Train, Train: p.Query}
}

// MatchList holds one entry per image of the project ordering. Entry j lists
// the keypoint correspondences against image j; the self entry is empty.
type MatchList [][]IndexPair

// PairCount returns the total number of pairs across all entries
func (m MatchList) PairCount() int {
	total := 0
	for _, entry := range m {
		total += len(entry)
	}
	return total
}

// Pose is the geolocation and attitude of the camera at exposure time
type Pose struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	MSL   float64 `json:"msl"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Bias holds the attitude and altitude correction scalars
type Bias struct {
	Yaw   float64 `json:"yaw_bias"`
	Roll  float64 `json:"roll_bias"`
	Pitch float64 `json:"pitch_bias"`
	Alt   float64 `json:"alt_bias"`
}

// ImageInfo is the catalog row for one image
type ImageInfo struct {
	ID          int64  `json:"id"`
	Directory   string `json:"directory"`
	Name        string `json:"name"`
	Pose        Pose   `json:"pose"`
	Bias        Bias   `json:"bias"`
	Keypoints   int    `json:"keypoints"`
	Descriptors int    `json:"descriptors"`
	MatchPairs  int    `json:"match_pairs"`
	UpdatedAt   string `json:"updated_at"`
}
