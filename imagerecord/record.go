// Package imagerecord holds the feature state of one survey image: its
// pixels, keypoints, descriptors and match lists, each loaded lazily from a
// sidecar file that shares the image's file root.
//
// An ImageRecord is not safe for concurrent use. Callers that process a
// project in parallel must give each goroutine its own records.
package imagerecord

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"featurestore/imageprocessor"
	"featurestore/logging"
	"featurestore/types"

	"gocv.io/x/gocv"
)

// Sidecar file suffixes appended to the file root
const (
	KeysSuffix       = ".keys"
	DescriptorSuffix = ".ppm"
	MatchSuffix      = ".match"
)

// ImageRecord is the per-image feature container
type ImageRecord struct {
	name           string
	fileRoot       string
	imageFile      string
	keysFile       string
	descriptorFile string
	matchFile      string

	pose types.Pose
	bias types.Bias

	img         gocv.Mat
	keypoints   []types.Keypoint
	descriptors gocv.Mat
	matches     types.MatchList

	states [resourceCount]LoadState
}

// New returns a record for fileName inside directory. When either argument
// is empty the record is left without identity for later Load; otherwise it
// is loaded immediately and load failures are only logged.
func New(directory, fileName string) *ImageRecord {
	r := &ImageRecord{}
	if directory != "" && fileName != "" {
		// failures are already reported per resource
		_ = r.Load(directory, fileName)
	}
	return r
}

// Load fixes the record's identity and reads keypoints, descriptors and
// matches in that order. Pixels are left for LoadImage. A failing resource
// does not stop the others; all failures are joined in the returned error.
func (r *ImageRecord) Load(directory, fileName string) error {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	fileRoot := filepath.Join(directory, stem)
	if r.name != "" && (r.name != fileName || r.fileRoot != fileRoot) {
		return fmt.Errorf("%w: record is %s, cannot reload as %s", errIdentityFixed, r.imageFile, filepath.Join(directory, fileName))
	}

	logging.DebugLog("Loading %s", fileName)
	r.name = fileName
	r.fileRoot = fileRoot
	r.imageFile = filepath.Join(directory, fileName)
	r.keysFile = fileRoot + KeysSuffix
	r.descriptorFile = fileRoot + DescriptorSuffix
	r.matchFile = fileRoot + MatchSuffix

	var errs []error
	if err := r.LoadKeypoints(); err != nil {
		errs = append(errs, err)
	}
	if err := r.LoadDescriptors(); err != nil {
		errs = append(errs, err)
	}
	if err := r.LoadMatches(); err != nil {
		errs = append(errs, err)
	}
	if err := r.CheckCorrespondence(); err != nil {
		logging.LogWarning("%v", err)
	}
	return errors.Join(errs...)
}

var errIdentityFixed = errors.New("image identity is fixed once loaded")

// Name returns the image file name
func (r *ImageRecord) Name() string { return r.name }

// FileRoot returns the directory joined with the name without its extension
func (r *ImageRecord) FileRoot() string { return r.fileRoot }

// ImageFile returns the path of the source raster
func (r *ImageRecord) ImageFile() string { return r.imageFile }

// KeysFile returns the path of the keypoint sidecar
func (r *ImageRecord) KeysFile() string { return r.keysFile }

// DescriptorFile returns the path of the descriptor raster
func (r *ImageRecord) DescriptorFile() string { return r.descriptorFile }

// MatchFile returns the path of the match sidecar
func (r *ImageRecord) MatchFile() string { return r.matchFile }

// SetPose overwrites the six pose fields together
func (r *ImageRecord) SetPose(pose types.Pose) { r.pose = pose }

// Pose returns the pose last set with SetPose
func (r *ImageRecord) Pose() types.Pose { return r.pose }

// SetBias overwrites the four correction scalars together
func (r *ImageRecord) SetBias(bias types.Bias) { r.bias = bias }

// Bias returns the correction scalars
func (r *ImageRecord) Bias() types.Bias { return r.bias }

// State reports how far resource res has been loaded
func (r *ImageRecord) State(res Resource) LoadState { return r.states[res] }

func fileMissing(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, fs.ErrNotExist)
}

func (r *ImageRecord) loadFailed(res Resource, path string, err error) error {
	r.states[res] = NotLoaded
	decodeErr := &DecodeError{Resource: res, Path: path, Err: err}
	logging.LogLoadFailure(res.String(), path, err)
	return decodeErr
}

// LoadImage decodes the source raster as grayscale if it is not held yet.
// A failure leaves the pixels unset so a later call retries.
func (r *ImageRecord) LoadImage() error {
	if r.states[ResourceImage] == Loaded {
		return nil
	}
	if r.imageFile == "" {
		return r.loadFailed(ResourceImage, r.imageFile, ErrNoIdentity)
	}

	img, err := imageprocessor.LoadGrayscale(r.imageFile)
	if err != nil {
		img.Close()
		return r.loadFailed(ResourceImage, r.imageFile, err)
	}
	r.img = img
	r.states[ResourceImage] = Loaded
	return nil
}

// LoadKeypoints parses the keys file if keypoints are not held yet. An
// absent file is not an error and leaves the list empty.
func (r *ImageRecord) LoadKeypoints() error {
	if r.states[ResourceKeypoints] == Loaded {
		return nil
	}
	if fileMissing(r.keysFile) {
		r.states[ResourceKeypoints] = Missing
		return nil
	}

	keypoints, err := decodeFile(r.keysFile, DecodeKeypoints)
	if err != nil {
		r.keypoints = nil
		return r.loadFailed(ResourceKeypoints, r.keysFile, err)
	}
	r.keypoints = keypoints
	r.states[ResourceKeypoints] = Loaded
	return nil
}

// LoadDescriptors decodes the descriptor raster if it is not held yet
func (r *ImageRecord) LoadDescriptors() error {
	if r.states[ResourceDescriptors] == Loaded {
		return nil
	}
	if fileMissing(r.descriptorFile) {
		r.states[ResourceDescriptors] = Missing
		return nil
	}

	des, err := readDescriptors(r.descriptorFile)
	if err != nil {
		return r.loadFailed(ResourceDescriptors, r.descriptorFile, err)
	}
	r.descriptors = des
	r.states[ResourceDescriptors] = Loaded
	return nil
}

// LoadMatches parses the match file if match lists are not held yet,
// keeping one entry per <pairs> element in file order
func (r *ImageRecord) LoadMatches() error {
	if r.states[ResourceMatches] == Loaded {
		return nil
	}
	if fileMissing(r.matchFile) {
		r.states[ResourceMatches] = Missing
		return nil
	}

	matches, err := decodeFile(r.matchFile, DecodeMatches)
	if err != nil {
		r.matches = nil
		return r.loadFailed(ResourceMatches, r.matchFile, err)
	}
	r.matches = matches
	r.states[ResourceMatches] = Loaded
	return nil
}

func decodeFile[T any](path string, decode func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return decode(bufio.NewReader(f))
}

// Image returns the pixel buffer, loading it first. The Mat stays owned by
// the record and must not be closed by the caller.
func (r *ImageRecord) Image() (gocv.Mat, error) {
	if err := r.LoadImage(); err != nil {
		return gocv.Mat{}, err
	}
	return r.img, nil
}

// Keypoints returns a copy of the keypoint list, loading it first
func (r *ImageRecord) Keypoints() ([]types.Keypoint, error) {
	err := r.LoadKeypoints()
	return slices.Clone(r.keypoints), err
}

// KeypointCount returns the number of keypoints held without loading
func (r *ImageRecord) KeypointCount() int { return len(r.keypoints) }

// Descriptors returns the descriptor matrix, loading it first. The Mat stays
// owned by the record. ErrNotAvailable is returned when no descriptor file exists.
func (r *ImageRecord) Descriptors() (gocv.Mat, error) {
	if err := r.LoadDescriptors(); err != nil {
		return gocv.Mat{}, err
	}
	if r.states[ResourceDescriptors] != Loaded {
		return gocv.Mat{}, fmt.Errorf("%s %s: %w", r.name, ResourceDescriptors, ErrNotAvailable)
	}
	return r.descriptors, nil
}

// DescriptorCount returns the descriptor row count held without loading
func (r *ImageRecord) DescriptorCount() int {
	if r.states[ResourceDescriptors] != Loaded {
		return 0
	}
	return r.descriptors.Rows()
}

// Matches returns a deep copy of the match lists, loading them first
func (r *ImageRecord) Matches() (types.MatchList, error) {
	err := r.LoadMatches()
	return cloneMatches(r.matches), err
}

func cloneMatches(m types.MatchList) types.MatchList {
	if m == nil {
		return nil
	}
	out := make(types.MatchList, len(m))
	for i, entry := range m {
		out[i] = slices.Clone(entry)
		if out[i] == nil {
			out[i] = []types.IndexPair{}
		}
	}
	return out
}

// SetImage replaces the pixel buffer and takes ownership of img
func (r *ImageRecord) SetImage(img gocv.Mat) {
	if r.states[ResourceImage] == Loaded {
		r.img.Close()
	}
	r.img = img
	r.states[ResourceImage] = Loaded
}

// SetKeypoints replaces the keypoint list with a copy of keypoints
func (r *ImageRecord) SetKeypoints(keypoints []types.Keypoint) {
	r.keypoints = slices.Clone(keypoints)
	r.states[ResourceKeypoints] = Loaded
}

// SetDescriptors replaces the descriptor matrix and takes ownership of des
func (r *ImageRecord) SetDescriptors(des gocv.Mat) {
	if r.states[ResourceDescriptors] == Loaded {
		r.descriptors.Close()
	}
	r.descriptors = des
	r.states[ResourceDescriptors] = Loaded
}

// SetMatches replaces the match lists with a copy of matches
func (r *ImageRecord) SetMatches(matches types.MatchList) {
	r.matches = cloneMatches(matches)
	r.states[ResourceMatches] = Loaded
}

// CheckCorrespondence verifies that descriptor row i can pair with keypoint
// i. It only checks when both resources are held.
func (r *ImageRecord) CheckCorrespondence() error {
	if r.states[ResourceKeypoints] != Loaded || r.states[ResourceDescriptors] != Loaded {
		return nil
	}
	if rows := r.descriptors.Rows(); rows != len(r.keypoints) {
		return fmt.Errorf("%s: %d descriptor rows for %d keypoints", r.name, rows, len(r.keypoints))
	}
	return nil
}

// ReleaseImage frees the pixel buffer only. A later LoadImage reads it again.
func (r *ImageRecord) ReleaseImage() {
	if r.states[ResourceImage] == Loaded {
		r.img.Close()
		r.img = gocv.Mat{}
	}
	r.states[ResourceImage] = NotLoaded
}

// Close releases the OpenCV memory behind the pixel buffer and descriptors.
// Both resources return to NotLoaded.
func (r *ImageRecord) Close() {
	if r.states[ResourceImage] == Loaded {
		r.img.Close()
		r.img = gocv.Mat{}
	}
	if r.states[ResourceDescriptors] == Loaded {
		r.descriptors.Close()
		r.descriptors = gocv.Mat{}
	}
	r.states[ResourceImage] = NotLoaded
	r.states[ResourceDescriptors] = NotLoaded
}
