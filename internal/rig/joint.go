// Package rig models the skeletal joints the signing engine drives: an indexed
// joint table (side × finger × segment → handle), the rendering collaborator
// interface, and a headless rig that interpolates tweens in memory.
package rig

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownJoint = errors.New("unknown joint")

// Side selects a hand.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Finger identifies a chain of segments on a hand. Arm is the arm root, a
// single-segment chain that carries the whole hand.
type Finger int

const (
	Arm Finger = iota
	Thumb
	Index
	Middle
	Ring
	Pinky
)

// Fingers lists the finger chains in playback order.
var Fingers = []Finger{Thumb, Index, Middle, Ring, Pinky}

// Sides lists the hands in playback order.
var Sides = []Side{Left, Right}

var fingerNames = map[Finger]string{
	Arm:    "arm",
	Thumb:  "thumb",
	Index:  "index",
	Middle: "middle",
	Ring:   "ring",
	Pinky:  "pinky",
}

func (f Finger) String() string {
	if name, ok := fingerNames[f]; ok {
		return name
	}
	return fmt.Sprintf("finger(%d)", int(f))
}

// Segments is the fixed segment count of the chain.
func (f Finger) Segments() int {
	switch f {
	case Arm:
		return 1
	case Thumb:
		return 2
	default:
		return 3
	}
}

// ParseFinger maps a pose-document finger name onto a Finger. The arm root is
// not a valid finger name.
func ParseFinger(name string) (Finger, bool) {
	for _, f := range Fingers {
		if fingerNames[f] == strings.ToLower(name) {
			return f, true
		}
	}
	return 0, false
}

// JointID addresses one skeletal node by hand, chain and segment (0 = root).
type JointID struct {
	Side    Side
	Finger  Finger
	Segment int
}

// ArmJoint is the root joint of a hand.
func ArmJoint(side Side) JointID {
	return JointID{Side: side, Finger: Arm}
}

func (j JointID) String() string {
	if j.Finger == Arm {
		return j.Side.String() + ".arm"
	}
	return fmt.Sprintf("%s.%s.%d", j.Side, j.Finger, j.Segment+1)
}

// Valid reports whether the segment index fits the chain.
func (j JointID) Valid() bool {
	if j.Side != Left && j.Side != Right {
		return false
	}
	if _, ok := fingerNames[j.Finger]; !ok {
		return false
	}
	return j.Segment >= 0 && j.Segment < j.Finger.Segments()
}

// JointCount is the number of joints per actor: 2 arms + 2×(2+3+3+3+3).
const JointCount = 2 * (1 + 2 + 3 + 3 + 3 + 3)

// AllJoints returns every joint in canonical order: per side, the arm root
// then each finger root-to-tip.
func AllJoints() []JointID {
	joints := make([]JointID, 0, JointCount)
	for _, side := range Sides {
		joints = append(joints, ArmJoint(side))
		for _, f := range Fingers {
			for seg := 0; seg < f.Segments(); seg++ {
				joints = append(joints, JointID{Side: side, Finger: f, Segment: seg})
			}
		}
	}
	return joints
}
