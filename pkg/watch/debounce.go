// Package watch coalesces bursts of change events into converge runs.
package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Pending
	Running
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	default:
		return "idle"
	}
}

// Debouncer runs Fn once events for a destination have quietened down.
//
// Each trigger pushes the run back by MinWait, but never further than
// MaxWait after the first trigger of a burst. Triggers that arrive while
// Fn is running schedule exactly one more run after it returns.
type Debouncer struct {
	Name    string
	MinWait time.Duration
	MaxWait time.Duration
	Fn      func(context.Context) error
	Log     *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	state    State
	deadline time.Time
	timer    *time.Timer
	gen      int
	again    bool
	done     chan struct{}
}

// Trigger records a change event.
func (d *Debouncer) Trigger(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = ctx
	switch d.state {
	case Idle:
		d.schedule(time.Now())
	case Pending:
		wait := d.MinWait
		if left := time.Until(d.deadline); left < wait {
			wait = left
		}
		d.arm(wait)
	case Running:
		d.again = true
	}
}

// State reports where the debouncer is.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stop cancels a pending run and waits for a running one to return.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.again = false
	if d.state == Pending {
		d.state = Idle
	}
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

// schedule must be called with mu held.
func (d *Debouncer) schedule(now time.Time) {
	d.state = Pending
	d.deadline = now.Add(d.MaxWait)
	d.arm(d.MinWait)
}

// arm replaces the pending timer, a timer that already fired is ignored
// through its generation.
func (d *Debouncer) arm(wait time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(wait, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen int) {
	d.mu.Lock()
	if d.state != Pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.state = Running
	d.done = make(chan struct{})
	ctx := d.ctx
	d.mu.Unlock()

	err := d.Fn(ctx)
	if err != nil && d.Log != nil {
		d.Log.Error("run failed", zap.String("destination", d.Name), zap.Error(err))
	}

	d.mu.Lock()
	close(d.done)
	d.done = nil
	if d.again && ctx.Err() == nil {
		d.again = false
		d.schedule(time.Now())
	} else {
		d.again = false
		d.state = Idle
	}
	d.mu.Unlock()
}

// Group keeps one Debouncer per destination.
type Group struct {
	MinWait time.Duration
	MaxWait time.Duration
	Fn      func(ctx context.Context, destination string) error
	Log     *zap.Logger

	mu         sync.Mutex
	debouncers map[string]*Debouncer
}

// Trigger records a change event for destination.
func (g *Group) Trigger(ctx context.Context, destination string) {
	g.debouncer(destination).Trigger(ctx)
}

// State reports the state of the debouncer for destination.
func (g *Group) State(destination string) State {
	return g.debouncer(destination).State()
}

// Stop stops every debouncer in the group.
func (g *Group) Stop() {
	g.mu.Lock()
	debouncers := make([]*Debouncer, 0, len(g.debouncers))
	for _, d := range g.debouncers {
		debouncers = append(debouncers, d)
	}
	g.mu.Unlock()
	for _, d := range debouncers {
		d.Stop()
	}
}

func (g *Group) debouncer(destination string) *Debouncer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.debouncers == nil {
		g.debouncers = map[string]*Debouncer{}
	}
	d, ok := g.debouncers[destination]
	if !ok {
		d = &Debouncer{
			Name:    destination,
			MinWait: g.MinWait,
			MaxWait: g.MaxWait,
			Fn:      func(ctx context.Context) error { return g.Fn(ctx, destination) },
			Log:     g.Log,
		}
		g.debouncers[destination] = d
	}
	return d
}
