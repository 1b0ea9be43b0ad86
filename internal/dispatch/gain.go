package dispatch

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Gain is the playback gain factor shared between the dispatcher and the
// music worker. The worker reads it once per output chunk, so a write lands
// within a chunk's worth of audio.
type Gain struct {
	bits atomic.Uint64
}

// NewGain starts at unity.
func NewGain() *Gain {
	g := &Gain{}
	g.Set(1.0)
	return g
}

func (g *Gain) Get() float64 { return math.Float64frombits(g.bits.Load()) }

func (g *Gain) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

const (
	duckFactor  = 0.25
	duckFade    = 300 * time.Millisecond
	minStepTime = 10 * time.Millisecond
)

// Ducker steps the music gain down while the assistant speaks and back up
// afterwards, so speech is never drowned out and the change is a fade rather
// than a jump.
type Ducker struct {
	mu       sync.Mutex
	gain     *Gain
	factor   float64
	fade     time.Duration
	active   bool
	original float64
}

func NewDucker(gain *Gain) *Ducker {
	return &Ducker{gain: gain, factor: duckFactor, fade: duckFade}
}

// Duck lowers the gain to a fraction of its current value. Nested calls
// collapse; only the first records the level Restore returns to.
func (d *Ducker) Duck() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return
	}
	d.original = d.gain.Get()
	d.fadeTo(d.original * d.factor)
	d.active = true
}

// Restore brings the gain back to the level Duck saw.
func (d *Ducker) Restore() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return
	}
	d.fadeTo(d.original)
	d.active = false
}

func (d *Ducker) fadeTo(target float64) {
	from := d.gain.Get()
	steps := int(d.fade / minStepTime)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		d.gain.Set(from + (target-from)*frac)
		if i < steps {
			time.Sleep(d.fade / time.Duration(steps))
		}
	}
}
