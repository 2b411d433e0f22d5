// Package alarm provides a deadline timer that retunes itself from the
// observed spacing of the events that re-arm it.
package alarm

import (
	"math"
	"sync"
	"time"
)

// Decay selects how past delays are averaged.
type Decay int

const (
	Arithmetic Decay = iota
	Weighted
	Harmonic
	Geometric
)

// Alarm fires once the gap since the last Alarm call exceeds the decayed
// average of previous gaps. The first call arms it with the given deadline.
type Alarm struct {
	decay Decay
	floor time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	last   time.Time
	delays []time.Duration
	done   chan struct{}
	fired  bool
}

func New(decay Decay) *Alarm {
	return &Alarm{decay: decay, done: make(chan struct{})}
}

// WithFloor sets the shortest interval the alarm re-arms for, so bursts of
// near simultaneous events do not trip it between two of them.
func (a *Alarm) WithFloor(d time.Duration) *Alarm {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.floor = d
	return a
}

// Alarm records an event and re-arms the timer.
func (a *Alarm) Alarm(deadline time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired {
		return
	}
	now := time.Now()
	if a.timer == nil {
		a.last = now
		a.timer = time.AfterFunc(deadline, a.fire)
		return
	}
	a.delays = append(a.delays, now.Sub(a.last))
	a.last = now
	next := average(a.decay, a.delays)
	if next <= 0 {
		next = deadline
	}
	if next < a.floor {
		next = a.floor
	}
	a.timer.Reset(next)
}

// Done closes when the alarm fires.
func (a *Alarm) Done() <-chan struct{} {
	return a.done
}

// Stop disarms the alarm without firing it.
func (a *Alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
}

func (a *Alarm) fire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fired {
		return
	}
	a.fired = true
	close(a.done)
}

func average(decay Decay, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	switch decay {
	case Weighted:
		// Sample i carries weight i+1 so recent gaps dominate.
		var sum, weights float64
		for i, d := range delays {
			w := float64(i + 1)
			sum += w * float64(d)
			weights += w
		}
		return time.Duration(sum / weights)
	case Harmonic:
		var inv float64
		for _, d := range delays {
			if d <= 0 {
				return 0
			}
			inv += 1 / float64(d)
		}
		return time.Duration(float64(len(delays)) / inv)
	case Geometric:
		var logs float64
		for _, d := range delays {
			if d <= 0 {
				return 0
			}
			logs += math.Log(float64(d))
		}
		return time.Duration(math.Exp(logs / float64(len(delays))))
	default:
		var sum time.Duration
		for _, d := range delays {
			sum += d
		}
		return sum / time.Duration(len(delays))
	}
}
