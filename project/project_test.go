package project

import (
	"bytes"
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"featurestore/database"
	"featurestore/features"
	"featurestore/imagerecord"
	"featurestore/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// writeSurvey writes n overlapping crops of one random block texture
func writeSurvey(t *testing.T, dir string, n int) []string {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	full := gocv.NewMatWithSize(240, 240+40*n, gocv.MatTypeCV8UC1)
	defer full.Close()
	for by := 0; by < full.Rows(); by += 8 {
		for bx := 0; bx < full.Cols(); bx += 8 {
			v := uint8(rng.Intn(256))
			for y := by; y < by+8; y++ {
				for x := bx; x < bx+8; x++ {
					full.SetUCharAt(y, x, v)
				}
			}
		}
	}

	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("IMG_%04d.png", i+1)
		crop := full.Region(image.Rect(40*i, 0, 40*i+240, 240))
		ok := gocv.IMWrite(filepath.Join(dir, names[i]), crop)
		crop.Close()
		require.True(t, ok)
	}
	return names
}

// stubDetector returns rows keypoints with distinct descriptor rows
type stubDetector struct {
	rows   int
	closed *atomic.Int32
}

func (d stubDetector) Detect(img gocv.Mat) ([]types.Keypoint, gocv.Mat, error) {
	kps := make([]types.Keypoint, d.rows)
	des := gocv.NewMatWithSize(d.rows, 32, gocv.MatTypeCV8UC1)
	for i := range kps {
		kps[i] = types.NewKeypoint(float64(i), float64(i), 31)
		kps[i].Response = float64(i + 1)
		for c := 0; c < 32; c++ {
			des.SetUCharAt(i, c, uint8(i*8+c))
		}
	}
	return kps, des, nil
}

func (d stubDetector) Close() error {
	d.closed.Add(1)
	return nil
}

// stubMatcher pairs row k of the query with row k+1 of the train set
type stubMatcher struct{}

func (stubMatcher) Match(query, train gocv.Mat) ([]types.IndexPair, error) {
	var pairs []types.IndexPair
	for k := 0; k+1 < query.Rows() && k+1 < train.Rows(); k++ {
		pairs = append(pairs, types.IndexPair{Query: k, Train: k + 1})
	}
	return pairs, nil
}

func (stubMatcher) Close() error { return nil }

func TestListImageFilesSkipsSidecars(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.JPG", "a.keys", "a.ppm", "a.match", "notes.txt", "c.tif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	names, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.jpg", "c.tif"}, names)
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent"), Options{})
	assert.Error(t, err)
}

func TestOpenOrdersRecords(t *testing.T) {
	dir := t.TempDir()
	names := writeSurvey(t, dir, 3)

	p, err := Open(dir, Options{Workers: 2})
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 3, p.Len())
	for i, name := range names {
		assert.Equal(t, name, p.Record(i).Name())
		assert.Equal(t, imagerecord.Missing, p.Record(i).State(imagerecord.ResourceKeypoints))
	}
	assert.Equal(t, 1, p.Index(names[1]))
	assert.Equal(t, -1, p.Index("absent.png"))
}

func TestOpenReportsCorruptSidecar(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IMG_0002.keys"), []byte("<image><keypoints>"), 0644))

	p, err := Open(dir, Options{Workers: 2})
	require.Error(t, err)
	require.NotNil(t, p)
	defer p.Close()
	assert.Contains(t, err.Error(), "IMG_0002.png")
	assert.Equal(t, imagerecord.NotLoaded, p.Record(1).State(imagerecord.ResourceKeypoints))
}

func TestDetectAndMatchWithStubs(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 3)

	var out bytes.Buffer
	p, err := Open(dir, Options{Workers: 2, Progress: &out})
	require.NoError(t, err)
	defer p.Close()

	var closed atomic.Int32
	require.NoError(t, p.Detect(func() features.Detector { return stubDetector{rows: 4, closed: &closed} }))
	assert.Equal(t, int32(2), closed.Load())
	assert.Contains(t, out.String(), "Detecting: 3/3")

	for i := 0; i < p.Len(); i++ {
		r := p.Record(i)
		assert.FileExists(t, r.KeysFile())
		assert.FileExists(t, r.DescriptorFile())
		assert.Equal(t, imagerecord.NotLoaded, r.State(imagerecord.ResourceImage))
	}

	require.NoError(t, p.Match(func() features.Matcher { return stubMatcher{} }))
	require.NoError(t, p.Validate())

	forward := []types.IndexPair{{Query: 0, Train: 1}, {Query: 1, Train: 2}, {Query: 2, Train: 3}}
	backward := []types.IndexPair{{Query: 1, Train: 0}, {Query: 2, Train: 1}, {Query: 3, Train: 2}}
	want := []types.MatchList{
		{{}, forward, forward},
		{backward, {}, forward},
		{backward, backward, {}},
	}

	reopened, err := Open(dir, Options{Workers: 3})
	require.NoError(t, err)
	defer reopened.Close()
	for i := 0; i < reopened.Len(); i++ {
		got, err := reopened.Record(i).Matches()
		require.NoError(t, err)
		if diff := cmp.Diff(want[i], got); diff != "" {
			t.Errorf("image %d matches (-want +got):\n%s", i, diff)
		}
	}
	require.NoError(t, reopened.Validate())
}

func TestMatchWithoutDescriptors(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	p, err := Open(dir, Options{Workers: 1})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Match(func() features.Matcher { return stubMatcher{} }))
	got, err := p.Record(0).Matches()
	require.NoError(t, err)
	assert.Equal(t, types.MatchList{{}, {}}, got)
}

func TestValidateRejectsWrongEntryCount(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	p, err := Open(dir, Options{Workers: 1})
	require.NoError(t, err)
	defer p.Close()

	p.Record(0).SetMatches(types.MatchList{{}})
	assert.ErrorContains(t, p.Validate(), "1 match entries for 2 images")
}

func TestValidateRejectsOutOfRangePair(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	p, err := Open(dir, Options{Workers: 1})
	require.NoError(t, err)
	defer p.Close()

	kps := []types.Keypoint{types.NewKeypoint(1, 1, 31), types.NewKeypoint(2, 2, 31)}
	p.Record(0).SetKeypoints(kps)
	p.Record(1).SetKeypoints(kps)
	p.Record(0).SetMatches(types.MatchList{{}, {{Query: 1, Train: 5}}})

	var indexErr *imagerecord.MatchIndexError
	assert.ErrorAs(t, p.Validate(), &indexErr)
	assert.Equal(t, "train", indexErr.Side)
}

func TestDetectAndMatchWithORB(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	p, err := Open(dir, Options{Workers: 2})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Detect(func() features.Detector { return features.NewORBDetector(500) }))
	require.NoError(t, p.Match(func() features.Matcher { return features.NewBFMatcher(0.8) }))
	require.NoError(t, p.Validate())

	first, err := p.Record(0).Matches()
	require.NoError(t, err)
	second, err := p.Record(1).Matches()
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Empty(t, first[0])
	assert.NotEmpty(t, first[1])
	require.Len(t, second[0], len(first[1]))
	for k, pair := range first[1] {
		assert.Equal(t, pair.Swap(), second[0][k])
	}
}

func TestSummary(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	p, err := Open(dir, Options{Workers: 2})
	require.NoError(t, err)
	defer p.Close()

	var closed atomic.Int32
	require.NoError(t, p.Detect(func() features.Detector { return stubDetector{rows: 3, closed: &closed} }))
	require.NoError(t, p.Match(func() features.Matcher { return stubMatcher{} }))

	summaries, err := p.Summary()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 3, summaries[0].Keypoints)
	assert.Equal(t, 3, summaries[0].Descriptors)
	assert.Equal(t, 2, summaries[0].MatchedPairs)
	assert.InDelta(t, 2.0, summaries[0].ResponseMean, 1e-9)
	assert.InDelta(t, 1.0, summaries[0].ResponseStdDev, 1e-9)

	var out bytes.Buffer
	PrintSummary(&out, summaries)
	assert.True(t, strings.HasSuffix(out.String(), "2 images, 6 keypoints, 4 matched pairs\n"))
}

func TestCatalogSyncAndApply(t *testing.T) {
	dir := t.TempDir()
	writeSurvey(t, dir, 2)

	db, err := database.InitDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	p, err := Open(dir, Options{Workers: 1})
	require.NoError(t, err)
	defer p.Close()

	pose := types.Pose{Lon: -93.1, Lat: 45.2, MSL: 310, Roll: 1, Pitch: -2, Yaw: 90}
	p.Record(1).SetPose(pose)
	p.Record(1).SetBias(types.Bias{Yaw: 0.5})
	require.NoError(t, p.SyncCatalog(db))

	reopened, err := Open(dir, Options{Workers: 1})
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.ApplyCatalog(db))
	assert.Equal(t, pose, reopened.Record(1).Pose())
	assert.Equal(t, types.Bias{Yaw: 0.5}, reopened.Record(1).Bias())
	assert.Equal(t, types.Pose{}, reopened.Record(0).Pose())

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	images, err := database.ListImages(db, abs)
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestProgressTrackerJoinsErrors(t *testing.T) {
	var out bytes.Buffer
	tracker := NewProgressTracker("Testing", 3, &out)
	tracker.Record(StepResult{Name: "a"})
	tracker.Record(StepResult{Name: "b", Err: fmt.Errorf("broken")})
	tracker.Record(StepResult{Name: "c"})

	err := tracker.Stop()
	require.Error(t, err)
	assert.Equal(t, "b: broken", err.Error())
	assert.Equal(t, 3, tracker.Processed())
	assert.Contains(t, out.String(), "Testing: 3/3 done")
	assert.Contains(t, out.String(), "1 errors")
}

func TestRunGuardedRecoversPanic(t *testing.T) {
	err := runGuarded("testing", func() error { panic("boom") })
	assert.ErrorContains(t, err, "panic during testing: boom")
}
