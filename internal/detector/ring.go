package detector

import "time"

// historyPoint is one retained valid-sample observation.
type historyPoint struct {
	t    time.Time
	temp float64
}

// ring is a fixed-capacity circular buffer of recent valid-sample
// history. Sized from quiet_window_s / sampling_period_s per the
// design note on explicit semantic containers.
type ring struct {
	buf   []historyPoint
	start int
	n     int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]historyPoint, capacity)}
}

func (r *ring) push(p historyPoint) {
	idx := (r.start + r.n) % len(r.buf)
	r.buf[idx] = p
	if r.n < len(r.buf) {
		r.n++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// since returns retained points with t >= cutoff, oldest first.
func (r *ring) since(cutoff time.Time) []historyPoint {
	out := make([]historyPoint, 0, r.n)
	for i := 0; i < r.n; i++ {
		p := r.buf[(r.start+i)%len(r.buf)]
		if !p.t.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// RingPoint is the serializable form of one retained history sample, for
// checkpointing.
type RingPoint struct {
	T            time.Time `json:"t"`
	TemperatureF float64   `json:"temperatureF"`
}

// snapshot returns every retained point, oldest first.
func (r *ring) snapshot() []RingPoint {
	pts := r.since(time.Time{})
	out := make([]RingPoint, len(pts))
	for i, p := range pts {
		out[i] = RingPoint{T: p.t, TemperatureF: p.temp}
	}
	return out
}

// restore repopulates the ring from a previously captured snapshot, oldest
// first, preserving push order so capacity overflow behaves as if the
// points had never stopped arriving.
func (r *ring) restore(points []RingPoint) {
	for _, p := range points {
		r.push(historyPoint{t: p.T, temp: p.TemperatureF})
	}
}

func minTemp(points []historyPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	m := points[0].temp
	for _, p := range points[1:] {
		if p.temp < m {
			m = p.temp
		}
	}
	return m
}

// leastSquaresSlopePerMinute fits temp = a + b*t over the given points
// (t expressed in minutes from the first point) and returns b. With
// fewer than 3 points the slope is treated as 0, per spec.
func leastSquaresSlopePerMinute(points []historyPoint) (float64, int) {
	n := len(points)
	if n < 3 {
		return 0, n
	}

	t0 := points[0].t
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.t.Sub(t0).Minutes()
		y := p.temp
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0, n
	}
	return (nf*sumXY - sumX*sumY) / denom, n
}
