// Package project runs feature steps over every survey image in one
// directory. The images are kept in name order and that order is the index
// space of every record's match list.
package project

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"

	"featurestore/database"
	"featurestore/features"
	"featurestore/imageprocessor"
	"featurestore/imagerecord"
	"featurestore/logging"
	"featurestore/types"

	"gocv.io/x/gocv"
)

// Options controls how a project runs its steps
type Options struct {
	// Workers bounds the goroutines used per step; values below 1 mean 1
	Workers int
	// Progress receives the progress line; nil discards it
	Progress io.Writer
}

// Project is the ordered set of image records of one directory
type Project struct {
	dir     string
	opts    Options
	records []*imagerecord.ImageRecord
}

// ListImageFiles returns the names of the survey images in dir, sorted
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %v", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageprocessor.IsSurveyImage(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Open builds one record per survey image in dir and loads its sidecars.
// Sidecar failures do not stop the others: the project is returned together
// with the joined load errors.
func Open(dir string, opts Options) (*Project, error) {
	names, err := ListImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	p := &Project{dir: dir, opts: opts, records: make([]*imagerecord.ImageRecord, len(names))}
	for i := range p.records {
		p.records[i] = &imagerecord.ImageRecord{}
	}
	logging.DebugLog("Opening project %s with %d images", dir, len(names))

	err = p.forEach("Loading", func(i int, r *imagerecord.ImageRecord) error {
		return r.Load(dir, names[i])
	})
	return p, err
}

// Dir returns the project directory
func (p *Project) Dir() string { return p.dir }

// Len returns the number of images
func (p *Project) Len() int { return len(p.records) }

// Record returns the record at position i of the ordering
func (p *Project) Record(i int) *imagerecord.ImageRecord { return p.records[i] }

// Index returns the position of the image called name, or -1
func (p *Project) Index(name string) int {
	return slices.IndexFunc(p.records, func(r *imagerecord.ImageRecord) bool {
		return r.Name() == name
	})
}

// Close releases the OpenCV memory of every record
func (p *Project) Close() {
	for _, r := range p.records {
		r.Close()
	}
}

// forEach runs fn once per record. A record is only ever handed to one
// goroutine.
func (p *Project) forEach(step string, fn func(i int, r *imagerecord.ImageRecord) error) error {
	return p.parallel(step, len(p.records),
		func(i int) string { return p.records[i].Name() },
		func(i int) error { return fn(i, p.records[i]) })
}

// parallel runs job for 0..n-1 with at most Workers goroutines and reports
// each outcome to a progress tracker
func (p *Project) parallel(step string, n int, name func(int) string, job func(int) error) error {
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.opts.Workers)
	tracker := NewProgressTracker(step, n, p.opts.Progress)

	for i := 0; i < n; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-semaphore }()

			err := runGuarded(step, func() error { return job(i) })
			// the name is read after the job so a loading step reports it
			tracker.Record(StepResult{Name: name(i), Err: err})
		}(i)
	}

	wg.Wait()
	return tracker.Stop()
}

// runGuarded turns a panic inside an OpenCV call into an error
func runGuarded(step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stackTrace := debug.Stack()
			err = fmt.Errorf("panic during %s: %v", step, r)
			logging.LogError("Panic during %s: %v\nStack trace: %s", step, r, string(stackTrace))
		}
	}()
	return fn()
}

// Detect computes keypoints and descriptors for every image and writes both
// sidecars. newDetector is called once per worker; each detector is used by
// one goroutine at a time.
func (p *Project) Detect(newDetector func() features.Detector) error {
	pool := make(chan features.Detector, p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		pool <- newDetector()
	}
	defer func() {
		close(pool)
		for d := range pool {
			d.Close()
		}
	}()

	return p.forEach("Detecting", func(_ int, r *imagerecord.ImageRecord) error {
		detector := <-pool
		defer func() { pool <- detector }()
		return detectRecord(detector, r)
	})
}

func detectRecord(detector features.Detector, r *imagerecord.ImageRecord) error {
	img, err := r.Image()
	if err != nil {
		return err
	}
	defer r.ReleaseImage()

	keypoints, des, err := detector.Detect(img)
	if err != nil {
		des.Close()
		return err
	}
	logging.DebugLog("%s: %d keypoints", r.Name(), len(keypoints))

	r.SetKeypoints(keypoints)
	r.SetDescriptors(des)
	if err := r.SaveKeypoints(); err != nil {
		return err
	}
	if des.Empty() {
		// an empty raster cannot be written; drop any stale one
		if err := os.Remove(r.DescriptorFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return r.SaveDescriptors()
}

// Match matches the descriptors of every unordered image pair and rewrites
// every match file. Entry j of image i holds the pairs (query in i, train in
// j); entry i of image j holds the same pairs swapped, and each image's own
// entry is empty.
func (p *Project) Match(newMatcher func() features.Matcher) error {
	n := len(p.records)
	descriptors, snapshotErr := p.snapshotDescriptors()
	defer func() {
		for _, des := range descriptors {
			des.Close()
		}
	}()

	type pairJob struct{ i, j int }
	var jobs []pairJob
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			jobs = append(jobs, pairJob{i, j})
		}
	}

	pool := make(chan features.Matcher, p.opts.Workers)
	for i := 0; i < p.opts.Workers; i++ {
		pool <- newMatcher()
	}
	defer func() {
		close(pool)
		for m := range pool {
			m.Close()
		}
	}()

	// table[i][j] for i < j; each job writes only its own cell
	table := make([][][]types.IndexPair, n)
	for i := range table {
		table[i] = make([][]types.IndexPair, n)
	}
	matchErr := p.parallel("Matching", len(jobs),
		func(k int) string {
			return p.records[jobs[k].i].Name() + " / " + p.records[jobs[k].j].Name()
		},
		func(k int) error {
			matcher := <-pool
			defer func() { pool <- matcher }()

			job := jobs[k]
			pairs, err := matcher.Match(descriptors[job.i], descriptors[job.j])
			if err != nil {
				return err
			}
			table[job.i][job.j] = pairs
			return nil
		})

	saveErr := p.forEach("Saving matches", func(i int, r *imagerecord.ImageRecord) error {
		list := make(types.MatchList, n)
		for j := 0; j < n; j++ {
			switch {
			case j > i:
				list[j] = table[i][j]
			case j < i:
				list[j] = swapPairs(table[j][i])
			}
			if list[j] == nil {
				list[j] = []types.IndexPair{}
			}
		}
		r.SetMatches(list)
		return r.SaveMatches()
	})

	return errors.Join(snapshotErr, matchErr, saveErr)
}

// snapshotDescriptors clones every record's descriptors so matching
// goroutines never touch the records. Images without descriptors get an
// empty matrix.
func (p *Project) snapshotDescriptors() ([]gocv.Mat, error) {
	out := make([]gocv.Mat, len(p.records))
	var errs []error
	for i, r := range p.records {
		des, err := r.Descriptors()
		switch {
		case err == nil:
			out[i] = des.Clone()
		case errors.Is(err, imagerecord.ErrNotAvailable):
			out[i] = gocv.NewMat()
		default:
			out[i] = gocv.NewMat()
			errs = append(errs, err)
		}
	}
	return out, errors.Join(errs...)
}

func swapPairs(pairs []types.IndexPair) []types.IndexPair {
	out := make([]types.IndexPair, len(pairs))
	for k, pair := range pairs {
		out[k] = pair.Swap()
	}
	return out
}

// Validate checks every record's match list against the project: one entry
// per image, and every pair inside both keypoint lists. Records are visited
// sequentially because validating one record loads its partners.
func (p *Project) Validate() error {
	n := len(p.records)
	var errs []error
	for i, r := range p.records {
		matches, err := r.Matches()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if r.State(imagerecord.ResourceMatches) != imagerecord.Loaded {
			continue
		}
		if len(matches) != n {
			errs = append(errs, fmt.Errorf("%s: %d match entries for %d images", r.Name(), len(matches), n))
			continue
		}
		for j, other := range p.records {
			if j == i {
				continue
			}
			if _, err := r.MatchesAgainst(j, other); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.CheckCorrespondence(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ApplyCatalog sets pose and bias on every record that has a catalog row
func (p *Project) ApplyCatalog(db *sql.DB) error {
	dir, err := filepath.Abs(p.dir)
	if err != nil {
		return err
	}
	for _, r := range p.records {
		info, found, err := database.LoadImage(db, dir, r.Name())
		if err != nil {
			return err
		}
		if found {
			r.SetPose(info.Pose)
			r.SetBias(info.Bias)
		}
	}
	return nil
}

// SyncCatalog stores every record's pose, bias and feature counts
func (p *Project) SyncCatalog(db *sql.DB) error {
	dir, err := filepath.Abs(p.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range p.records {
		if err := database.StoreImage(db, Info(dir, r)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Info describes r as a catalog row under dir without loading anything
func Info(dir string, r *imagerecord.ImageRecord) types.ImageInfo {
	pairs := 0
	if r.State(imagerecord.ResourceMatches) == imagerecord.Loaded {
		matches, _ := r.Matches()
		pairs = matches.PairCount()
	}
	return types.ImageInfo{
		Directory:   dir,
		Name:        r.Name(),
		Pose:        r.Pose(),
		Bias:        r.Bias(),
		Keypoints:   r.KeypointCount(),
		Descriptors: r.DescriptorCount(),
		MatchPairs:  pairs,
	}
}
