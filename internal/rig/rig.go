package rig

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is a joint's local translation and heading/pitch/roll in degrees.
type Transform struct {
	Pos mgl32.Vec3 `json:"pos"`
	Hpr mgl32.Vec3 `json:"hpr"`
}

// Tween moves one joint from wherever it is to the target over Duration.
type Tween struct {
	Joint    JointID
	Handle   Handle
	Pos      mgl32.Vec3
	Hpr      mgl32.Vec3
	Duration time.Duration
}

// Rig is the rendering collaborator. Play is fire-and-forget: the tweens of
// one call run strictly one after another and the caller never waits on them.
// ClearTweens cancels everything still in flight, leaving joints where they
// are.
type Rig interface {
	SetPos(h Handle, pos mgl32.Vec3)
	SetHpr(h Handle, hpr mgl32.Vec3)
	Transform(h Handle) Transform
	Play(tweens []Tween)
	ClearTweens()
}

// Nop discards every call. Transform always reports the zero transform.
type Nop struct{}

func (Nop) SetPos(Handle, mgl32.Vec3)  {}
func (Nop) SetHpr(Handle, mgl32.Vec3)  {}
func (Nop) Transform(Handle) Transform { return Transform{} }
func (Nop) Play([]Tween)               {}
func (Nop) ClearTweens()               {}

type activeTween struct {
	tween   Tween
	from    Transform
	elapsed time.Duration
}

// track is one Play call: its tweens run one after another.
type track struct {
	queue  []Tween
	active *activeTween
}

// Memory is a headless rig. Each Play call starts its own track, running in
// parallel with earlier ones; tracks are progressed by Advance and later
// tracks win when they drive the same joint. Snapshots may be taken from any
// goroutine.
type Memory struct {
	mu         sync.RWMutex
	table      *Table
	transforms map[Handle]Transform
	tracks     []*track
}

// NewMemory creates a rig with every joint of table at the origin.
func NewMemory(table *Table) *Memory {
	if table == nil {
		table = DefaultTable()
	}
	m := &Memory{
		table:      table,
		transforms: make(map[Handle]Transform, table.Len()),
	}
	for _, j := range AllJoints() {
		if h, ok := table.Handle(j); ok {
			m.transforms[h] = Transform{}
		}
	}
	return m
}

func (m *Memory) SetPos(h Handle, pos mgl32.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.transforms[h]
	t.Pos = pos
	m.transforms[h] = t
}

func (m *Memory) SetHpr(h Handle, hpr mgl32.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.transforms[h]
	t.Hpr = hpr
	m.transforms[h] = t
}

func (m *Memory) Transform(h Handle) Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transforms[h]
}

// Play starts a new track.
func (m *Memory) Play(tweens []Tween) {
	if len(tweens) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, &track{queue: append([]Tween(nil), tweens...)})
}

// Busy reports whether any track is still running.
func (m *Memory) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracks) > 0
}

// ClearTweens drops every track, leaving joints where they are.
func (m *Memory) ClearTweens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = nil
}

// Advance progresses every track by dt. Zero-length tweens snap and do not
// consume time.
func (m *Memory) Advance(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	running := m.tracks[:0]
	for _, tr := range m.tracks {
		if m.advanceTrack(tr, dt) {
			running = append(running, tr)
		}
	}
	for i := len(running); i < len(m.tracks); i++ {
		m.tracks[i] = nil
	}
	m.tracks = running
}

// advanceTrack reports whether tr still has work left.
func (m *Memory) advanceTrack(tr *track, dt time.Duration) bool {
	for {
		if tr.active == nil {
			if len(tr.queue) == 0 {
				return false
			}
			next := tr.queue[0]
			tr.queue = tr.queue[1:]
			tr.active = &activeTween{tween: next, from: m.transforms[next.Handle]}
		}

		a := tr.active
		remaining := a.tween.Duration - a.elapsed
		if dt >= remaining {
			dt -= remaining
			m.transforms[a.tween.Handle] = Transform{Pos: a.tween.Pos, Hpr: a.tween.Hpr}
			tr.active = nil
			continue
		}

		a.elapsed += dt
		progress := float32(a.elapsed) / float32(a.tween.Duration)
		m.transforms[a.tween.Handle] = Transform{
			Pos: lerp(a.from.Pos, a.tween.Pos, progress),
			Hpr: lerp(a.from.Hpr, a.tween.Hpr, progress),
		}
		return true
	}
}

// Snapshot returns every joint transform keyed by joint name.
func (m *Memory) Snapshot() map[string]Transform {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Transform, len(m.transforms))
	for h, t := range m.transforms {
		if j, ok := m.table.Joint(h); ok {
			out[j.String()] = t
		}
	}
	return out
}

func lerp(from, to mgl32.Vec3, t float32) mgl32.Vec3 {
	return from.Add(to.Sub(from).Mul(t))
}
