package imagerecord

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"featurestore/logging"
)

// SaveKeypoints writes the keypoint list to the keys file. Keypoints that
// failed to decode are not written, so the file on disk stays for a retry.
func (r *ImageRecord) SaveKeypoints() error {
	return r.saveWith(ResourceKeypoints, r.keysFile, func(path string) error {
		if r.states[ResourceKeypoints] == NotLoaded {
			return ErrNotAvailable
		}
		return writeAtomic(path, func(w *bufio.Writer) error {
			return EncodeKeypoints(w, r.keypoints)
		})
	})
}

// SaveDescriptors writes the descriptor matrix to the descriptor raster
func (r *ImageRecord) SaveDescriptors() error {
	return r.saveWith(ResourceDescriptors, r.descriptorFile, func(path string) error {
		if r.states[ResourceDescriptors] != Loaded {
			return ErrNotAvailable
		}
		partial := partialPath(path)
		if err := writeDescriptors(partial, r.descriptors); err != nil {
			os.Remove(partial)
			return err
		}
		return os.Rename(partial, path)
	})
}

// SaveMatches writes one <pairs> element per match entry to the match file
func (r *ImageRecord) SaveMatches() error {
	return r.saveWith(ResourceMatches, r.matchFile, func(path string) error {
		if r.states[ResourceMatches] == NotLoaded {
			return ErrNotAvailable
		}
		return writeAtomic(path, func(w *bufio.Writer) error {
			return EncodeMatches(w, r.matches)
		})
	})
}

func (r *ImageRecord) saveWith(res Resource, path string, write func(string) error) error {
	var err error
	if path == "" {
		err = ErrNoIdentity
	} else {
		err = write(path)
	}
	if err != nil {
		logging.LogSaveFailure(res.String(), path, err)
		return &EncodeError{Resource: res, Path: path, Err: err}
	}
	return nil
}

// partialPath keeps the extension so extension based encoders still apply
func partialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".partial" + ext
}

// writeAtomic writes through a sibling file and renames it over path, so a
// failed save never leaves a truncated sidecar behind
func writeAtomic(path string, encode func(*bufio.Writer) error) error {
	partial := partialPath(path)
	f, err := os.Create(partial)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	err = encode(w)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return err
	}
	return os.Rename(partial, path)
}
