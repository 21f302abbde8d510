package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/signsynth/internal/config"
	"github.com/normanking/signsynth/internal/pose"
	"github.com/normanking/signsynth/internal/rig"
)

func testPose() pose.Pose {
	seg := func(h float32) rig.Transform { return rig.Transform{Hpr: mgl32.Vec3{h, 0, 0}} }
	return pose.Pose{
		Left: pose.Hand{
			Transform: rig.Transform{Pos: mgl32.Vec3{-1, 0, 0}},
			Fingers: map[rig.Finger][]rig.Transform{
				rig.Index: {seg(1), seg(2), seg(3)},
			},
		},
		Right: pose.Hand{
			Transform: rig.Transform{Pos: mgl32.Vec3{1, 0, 0}, Hpr: mgl32.Vec3{0, 90, 0}},
			Fingers: map[rig.Finger][]rig.Transform{
				rig.Pinky: {seg(7), seg(8), seg(9)},
				rig.Thumb: {seg(4), seg(5)},
			},
		},
	}
}

func newBuilder() *Builder {
	return NewBuilder(rig.DefaultTable(), config.DefaultConfig().Timing)
}

func jointNames(tweens []rig.Tween) string {
	names := make([]string, len(tweens))
	for i, tw := range tweens {
		names[i] = tw.Joint.String()
	}
	return strings.Join(names, " ")
}

func TestBuildOrdering(t *testing.T) {
	tweens := newBuilder().Build(pose.Static(testPose()), Sequence)

	assert.Equal(t,
		"left.arm right.arm left.index.1 left.index.2 left.index.3 "+
			"right.thumb.1 right.thumb.2 right.pinky.1 right.pinky.2 right.pinky.3",
		jointNames(tweens))
}

func TestBuildStaticDurations(t *testing.T) {
	b := newBuilder()

	seq := b.Build(pose.Static(testPose()), Sequence)
	assert.Equal(t, 50*time.Millisecond, seq[0].Duration)
	assert.Equal(t, 50*time.Millisecond, seq[1].Duration)
	assert.Equal(t, time.Duration(0), seq[2].Duration, "fingers snap in sequence playback")

	for _, tw := range b.Build(pose.Static(testPose()), Setup) {
		assert.Zero(t, tw.Duration, tw.Joint.String())
	}
}

func TestBuildHandlesResolved(t *testing.T) {
	table := rig.DefaultTable()
	for _, tw := range NewBuilder(table, config.DefaultConfig().Timing).Build(pose.Static(testPose()), Sequence) {
		h, ok := table.Handle(tw.Joint)
		require.True(t, ok)
		assert.Equal(t, h, tw.Handle)
	}
}

func TestBuildClip(t *testing.T) {
	second := testPose()
	second.Right.Pos = mgl32.Vec3{2, 2, 2}
	clip := pose.Entry{Frames: []pose.Pose{testPose(), second}, Clip: true}

	tweens := newBuilder().Build(clip, Sequence)
	require.Len(t, tweens, 20)

	// 5s / (2 frames * 2) + 50ms
	want := 1250*time.Millisecond + 50*time.Millisecond
	for _, tw := range tweens {
		assert.Equal(t, want, tw.Duration)
	}
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, tweens[1].Pos)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, tweens[11].Pos, "frames play in clip order")
	assert.Equal(t, 20*want, Duration(tweens))
}

func TestClipTweenDurationConfigurable(t *testing.T) {
	timing := config.DefaultConfig().Timing
	timing.ClipBudget = 3 * time.Second
	timing.JointsPerFrame = 3
	timing.TweenDelay = 0
	b := NewBuilder(nil, timing)

	assert.Equal(t, 500*time.Millisecond, b.ClipTweenDuration(2))
	assert.Equal(t, time.Duration(0), b.ClipTweenDuration(0))
}

func TestSingleFrameClipMatchesStatic(t *testing.T) {
	b := newBuilder()
	static := b.Build(pose.Static(testPose()), Sequence)
	clip := b.Build(pose.Entry{Frames: []pose.Pose{testPose()}, Clip: true}, Sequence)

	require.Len(t, clip, len(static))
	for i := range static {
		assert.Equal(t, static[i].Joint, clip[i].Joint)
		assert.Equal(t, static[i].Pos, clip[i].Pos)
		assert.Equal(t, static[i].Hpr, clip[i].Hpr)
	}
}

func TestBuildEmpty(t *testing.T) {
	assert.Nil(t, newBuilder().Build(pose.Entry{}, Sequence))
}

func TestSlide(t *testing.T) {
	left := rig.Transform{Pos: mgl32.Vec3{-1, 0, 0}}
	right := rig.Transform{Pos: mgl32.Vec3{1, 0, 2}, Hpr: mgl32.Vec3{0, 0, 30}}

	tweens := newBuilder().Slide(left, right)
	require.Len(t, tweens, 4)
	assert.Equal(t, "left.arm right.arm left.arm right.arm", jointNames(tweens))

	assert.Equal(t, left.Pos, tweens[0].Pos)
	assert.InDelta(t, 0.5, tweens[1].Pos.X(), 1e-6)
	assert.Equal(t, right.Hpr, tweens[1].Hpr)
	assert.Equal(t, right.Pos, tweens[3].Pos)
	for _, tw := range tweens {
		assert.Equal(t, 200*time.Millisecond, tw.Duration)
	}
}

func TestSnap(t *testing.T) {
	table := rig.DefaultTable()
	m := rig.NewMemory(table)
	b := NewBuilder(table, config.DefaultConfig().Timing)

	b.Snap(m, testPose())

	snap := m.Snapshot()
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, snap["right.arm"].Pos)
	assert.Equal(t, mgl32.Vec3{9, 0, 0}, snap["right.pinky.3"].Hpr)
	assert.False(t, m.Busy())

	left, right := b.ArmTransforms(m)
	assert.Equal(t, mgl32.Vec3{-1, 0, 0}, left.Pos)
	assert.Equal(t, mgl32.Vec3{0, 90, 0}, right.Hpr)
}
