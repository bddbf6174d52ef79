package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time, so consumers can
// depend on a clock abstraction rather than a concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Ticks returns the number of ticks elapsed since the controller started.
	Ticks() uint64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated steps as fast as the listeners allow, still by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// Listener is invoked once per tick with the tick index (starting at 1)
// and the simulation time after the tick.
type Listener func(tick uint64, simTime time.Time)

// TimeController drives simulation time and notifies registered listeners.
// Listeners run sequentially on the controller goroutine.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// NewFixedRate constructs a controller ticking hz times per second of
// simulation time.
func NewFixedRate(start time.Time, hz int, mode Mode) *TimeController {
	if hz <= 0 {
		hz = 1
	}
	return NewTimeController(start, time.Second/time.Duration(hz), mode)
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns the ticks elapsed. Implements SimClock.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves simulation time without firing listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances one tick and runs the listeners synchronously.
func (tc *TimeController) Step() {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	tick, now := tc.ticks, tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick, now)
	}
}

// Start runs the controller for the specified simulated duration in a
// separate goroutine; a non-positive duration runs until ctx is cancelled.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var tickC <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tickC = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if tickC != nil {
				select {
				case <-ctx.Done():
					return
				case <-tickC:
				}
			} else if ctx.Err() != nil {
				return
			}

			tc.Step()
			elapsed += tc.Tick
		}
	}()
	return done
}
