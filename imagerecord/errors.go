package imagerecord

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAvailable is returned by accessors when a resource has no data,
	// either because its file does not exist or because loading failed
	ErrNotAvailable = errors.New("resource not available")

	// ErrNoIdentity is returned when a record is used before Load gave it a name
	ErrNoIdentity = errors.New("image record has no file identity")
)

// DecodeError reports a resource file that exists but could not be read
type DecodeError struct {
	Resource Resource
	Path     string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: load error: %v", e.Resource, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a resource that could not be written
type EncodeError struct {
	Resource Resource
	Path     string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s: error saving file: %v", e.Resource, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// MatchIndexError reports a match pair whose keypoint index falls outside
// the keypoint list it refers to
type MatchIndexError struct {
	Image string
	Entry int
	Pair  int
	// Side is "query" for this image's index and "train" for the other image's
	Side  string
	Index int
	Limit int
}

func (e *MatchIndexError) Error() string {
	return fmt.Sprintf("%s: match entry %d pair %d: %s index %d out of range [0, %d)",
		e.Image, e.Entry, e.Pair, e.Side, e.Index, e.Limit)
}
