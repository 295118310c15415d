// Package stats implements numerically stable online statistics for a
// single (run, stage) pair: running mean, variance, min, and max via
// Welford's method.
package stats

import (
	"math"
	"time"
)

// Running holds Welford moments for a stream of valid samples.
type Running struct {
	n        uint64
	mean     float64
	m2       float64
	min      float64
	max      float64
	firstT   time.Time
	lastT    time.Time
	hasFirst bool
}

// New returns an empty accumulator.
func New() *Running {
	return &Running{}
}

// Update folds one valid temperature reading into the running moments.
func (r *Running) Update(x float64, at time.Time) {
	r.n++
	delta := x - r.mean
	r.mean += delta / float64(r.n)
	r.m2 += delta * (x - r.mean)

	if !r.hasFirst {
		r.min = x
		r.max = x
		r.firstT = at
		r.hasFirst = true
	} else {
		if x < r.min {
			r.min = x
		}
		if x > r.max {
			r.max = x
		}
	}
	r.lastT = at
}

// N returns the number of samples folded in so far.
func (r *Running) N() uint64 {
	return r.n
}

// Snapshot is the read-only view of a Running accumulator's current state.
type Snapshot struct {
	N      uint64
	Mean   float64
	Stddev float64
	Min    float64
	Max    float64
	FirstT time.Time
	LastT  time.Time
}

// Snapshot returns the current statistics. With n=0, N is 0 and Mean,
// Stddev, Min and Max are NaN, matching spec.md's "stage record reports mean=NaN ..." rule.
func (r *Running) Snapshot() Snapshot {
	if r.n == 0 {
		return Snapshot{Mean: math.NaN(), Stddev: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	}

	var variance, stddev float64
	if r.n >= 2 {
		variance = r.m2 / float64(r.n-1)
		stddev = math.Sqrt(variance)
	}

	return Snapshot{
		N:      r.n,
		Mean:   r.mean,
		Stddev: stddev,
		Min:    r.min,
		Max:    r.max,
		FirstT: r.firstT,
		LastT:  r.lastT,
	}
}

// Checkpoint is the serializable form of a Running accumulator, used by
// the State Sink to persist exact moments across a restart.
type Checkpoint struct {
	N        uint64    `json:"n"`
	Mean     float64   `json:"mean"`
	M2       float64   `json:"m2"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	FirstT   time.Time `json:"firstT"`
	LastT    time.Time `json:"lastT"`
	HasFirst bool      `json:"hasFirst"`
}

// ToCheckpoint captures the accumulator's exact internal moments.
func (r *Running) ToCheckpoint() Checkpoint {
	return Checkpoint{
		N: r.n, Mean: r.mean, M2: r.m2, Min: r.min, Max: r.max,
		FirstT: r.firstT, LastT: r.lastT, HasFirst: r.hasFirst,
	}
}

// FromCheckpoint restores an accumulator from a previously captured
// Checkpoint, preserving the exact moments (no recomputation from raw
// samples, per spec.md's recovery guarantee).
func FromCheckpoint(c Checkpoint) *Running {
	return &Running{
		n: c.N, mean: c.Mean, m2: c.M2, min: c.Min, max: c.Max,
		firstT: c.FirstT, lastT: c.LastT, hasFirst: c.HasFirst,
	}
}
