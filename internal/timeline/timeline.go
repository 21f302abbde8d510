// Package timeline turns pose entries into ordered joint tweens.
package timeline

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/signsynth/internal/config"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/rig"
)

// Mode selects the interpolation constants for static poses.
type Mode int

const (
	// Setup snaps every joint.
	Setup Mode = iota
	// Sequence glides the arms and uses FingerGlide for fingers.
	Sequence
)

func (m Mode) String() string {
	if m == Setup {
		return "setup"
	}
	return "sequence"
}

// Builder emits tweens for a joint table using the configured timing.
type Builder struct {
	table  *rig.Table
	timing config.TimingConfig
}

func NewBuilder(table *rig.Table, timing config.TimingConfig) *Builder {
	if table == nil {
		table = rig.DefaultTable()
	}
	if timing.JointsPerFrame <= 0 {
		timing.JointsPerFrame = 1
	}
	return &Builder{table: table, timing: timing}
}

// Build returns the tweens for an entry. Each frame queues the left then right
// arm, then the left hand's fingers and the right hand's fingers, thumb to
// pinky and root to tip. Clip frames follow in clip order.
func (b *Builder) Build(e pose.Entry, mode Mode) []rig.Tween {
	if len(e.Frames) == 0 {
		return nil
	}

	hand, finger := b.staticDurations(mode)
	if e.Clip {
		d := b.ClipTweenDuration(len(e.Frames))
		hand, finger = d, d
	}

	tweens := make([]rig.Tween, 0, len(e.Frames)*rig.JointCount)
	for i := range e.Frames {
		tweens = b.appendFrame(tweens, &e.Frames[i], hand, finger)
	}
	return tweens
}

// ClipTweenDuration spreads ClipBudget over every tween of a clip and adds
// the fixed per-tween delay.
func (b *Builder) ClipTweenDuration(frames int) time.Duration {
	if frames <= 0 {
		return b.timing.TweenDelay
	}
	per := b.timing.ClipBudget / time.Duration(frames*b.timing.JointsPerFrame)
	return per + b.timing.TweenDelay
}

func (b *Builder) staticDurations(mode Mode) (hand, finger time.Duration) {
	if mode == Setup {
		return 0, 0
	}
	return b.timing.HandGlide, b.timing.FingerGlide
}

func (b *Builder) appendFrame(tweens []rig.Tween, p *pose.Pose, hand, finger time.Duration) []rig.Tween {
	for _, side := range rig.Sides {
		h := p.Hand(side)
		tweens = b.appendTween(tweens, rig.ArmJoint(side), h.Transform, hand)
	}
	for _, side := range rig.Sides {
		h := p.Hand(side)
		for _, f := range rig.Fingers {
			chain, ok := h.Fingers[f]
			if !ok {
				continue
			}
			for seg, t := range chain {
				tweens = b.appendTween(tweens, rig.JointID{Side: side, Finger: f, Segment: seg}, t, finger)
			}
		}
	}
	return tweens
}

func (b *Builder) appendTween(tweens []rig.Tween, j rig.JointID, t rig.Transform, d time.Duration) []rig.Tween {
	h, ok := b.table.Handle(j)
	if !ok {
		return tweens
	}
	return append(tweens, rig.Tween{Joint: j, Handle: h, Pos: t.Pos, Hpr: t.Hpr, Duration: d})
}

// Slide is the repeat-letter motion: the right arm steps SlideDistance along
// -X and back while the left arm holds.
func (b *Builder) Slide(left, right rig.Transform) []rig.Tween {
	offset := right.Pos.Add(mgl32.Vec3{-b.timing.SlideDistance, 0, 0})
	step := b.timing.SlideStep

	var tweens []rig.Tween
	tweens = b.appendTween(tweens, rig.ArmJoint(rig.Left), left, step)
	tweens = b.appendTween(tweens, rig.ArmJoint(rig.Right), rig.Transform{Pos: offset, Hpr: right.Hpr}, step)
	tweens = b.appendTween(tweens, rig.ArmJoint(rig.Left), left, step)
	tweens = b.appendTween(tweens, rig.ArmJoint(rig.Right), right, step)
	return tweens
}

// Snap writes a pose onto the rig directly, without tweens.
func (b *Builder) Snap(r rig.Rig, p pose.Pose) {
	for _, tw := range b.appendFrame(nil, &p, 0, 0) {
		r.SetPos(tw.Handle, tw.Pos)
		r.SetHpr(tw.Handle, tw.Hpr)
	}
}

// ArmTransforms reads both arm roots from the rig.
func (b *Builder) ArmTransforms(r rig.Rig) (left, right rig.Transform) {
	if h, ok := b.table.Handle(rig.ArmJoint(rig.Left)); ok {
		left = r.Transform(h)
	}
	if h, ok := b.table.Handle(rig.ArmJoint(rig.Right)); ok {
		right = r.Transform(h)
	}
	return left, right
}

// Duration is the total playback time of tweens run back to back.
func Duration(tweens []rig.Tween) time.Duration {
	var total time.Duration
	for _, tw := range tweens {
		total += tw.Duration
	}
	return total
}
