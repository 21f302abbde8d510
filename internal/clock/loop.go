// Package clock provides the cooperative single-threaded loop the engine runs
// on. Callbacks execute only inside Advance, so code they call never needs
// locking; other goroutines reach the loop through Post.
package clock

import (
	"context"
	"sync"
	"time"
)

// Token identifies a pending callback. The zero Token is never issued.
type Token uint64

// Scheduler registers delayed callbacks.
type Scheduler interface {
	After(d time.Duration, fn func()) Token
	Cancel(t Token)
}

type timer struct {
	due time.Time
	seq Token
	fn  func()
}

// Loop is a manual-time scheduler. Delays are measured against the time given
// to Advance.
type Loop struct {
	mu     sync.Mutex
	now    time.Time
	seq    Token
	timers map[Token]*timer
	posted []func()
}

func NewLoop(start time.Time) *Loop {
	return &Loop{
		now:    start,
		timers: make(map[Token]*timer),
	}
}

// Now is the time of the last Advance.
func (l *Loop) Now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// After runs fn once the loop has advanced d past the current time. A zero
// or negative d runs at the next Advance.
func (l *Loop) After(d time.Duration, fn func()) Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d < 0 {
		d = 0
	}
	l.seq++
	l.timers[l.seq] = &timer{due: l.now.Add(d), seq: l.seq, fn: fn}
	return l.seq
}

// Cancel removes a pending callback. Unknown or already fired tokens are
// ignored.
func (l *Loop) Cancel(t Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.timers, t)
}

// Post queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.posted = append(l.posted, fn)
}

// Pending is the number of registered callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// Advance moves time forward to now, runs posted functions, then every due
// callback in due-time then registration order. Callbacks registered with a
// zero delay while advancing run in the same call.
func (l *Loop) Advance(now time.Time) {
	l.mu.Lock()
	if now.After(l.now) {
		l.now = now
	}
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	for _, fn := range posted {
		fn()
	}

	for {
		fn := l.popDue()
		if fn == nil {
			return
		}
		fn()
	}
}

func (l *Loop) popDue() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	var next *timer
	for _, t := range l.timers {
		if t.due.After(l.now) {
			continue
		}
		if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.seq < next.seq) {
			next = t
		}
	}
	if next == nil {
		return nil
	}
	delete(l.timers, next.seq)
	return next.fn
}

// Run drives the loop from the wall clock every interval until ctx is done.
// onTick, if set, runs on the loop after each Advance with the elapsed time.
func (l *Loop) Run(ctx context.Context, interval time.Duration, onTick func(dt time.Duration)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.Advance(now)
			if onTick != nil {
				onTick(now.Sub(last))
			}
			last = now
		}
	}
}
