// Package pose loads sign pose documents: named static hand configurations
// and keyframe clips, keyed by lowercase sign names.
package pose

import (
	"errors"
	"fmt"

	"github.com/normanking/signsynth/internal/rig"
)

// DefaultKey is the reserved rest pose every document must carry.
const DefaultKey = "default"

var (
	ErrMissingDefault = errors.New("missing default pose")
	ErrEmptyClip      = errors.New("clip has no frames")
)

// DataFormatError reports a document that cannot be turned into a library.
// Key and Path locate the offending value when known.
type DataFormatError struct {
	Key  string
	Path string
	Err  error
}

func (e *DataFormatError) Error() string {
	switch {
	case e.Key == "" && e.Path == "":
		return fmt.Sprintf("pose document: %v", e.Err)
	case e.Path == "":
		return fmt.Sprintf("pose %q: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("pose %q at %s: %v", e.Key, e.Path, e.Err)
	}
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// Hand is one arm root transform plus the finger chains the pose sets.
// Fingers missing from the map keep whatever transform they last held.
type Hand struct {
	rig.Transform
	Fingers map[rig.Finger][]rig.Transform
}

// Pose is a static configuration of both hands.
type Pose struct {
	Left  Hand
	Right Hand
}

// Hand returns the hand on side.
func (p *Pose) Hand(side rig.Side) *Hand {
	if side == rig.Left {
		return &p.Left
	}
	return &p.Right
}

// Entry is either a single pose or a clip of keyframes played in order.
type Entry struct {
	Frames []Pose
	Clip   bool
}

// Static wraps a single pose.
func Static(p Pose) Entry {
	return Entry{Frames: []Pose{p}}
}

// First is the entry's rest frame: the pose itself, or a clip's first frame.
func (e Entry) First() Pose {
	if len(e.Frames) == 0 {
		return Pose{}
	}
	return e.Frames[0]
}
