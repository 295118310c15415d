package transport

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// zoneProgram describes one zone's repeating idle -> ramp -> stable ->
// end waveform, in seconds of simulated elapsed time.
type zoneProgram struct {
	ambientF, targetF float64
	idleS, rampS, stableS, endS float64
	noiseF float64
}

func (p zoneProgram) cycleLen() float64 {
	return p.idleS + p.rampS + p.stableS + p.endS
}

// defaultPrograms mirrors the teacher's driving-cycle phase table
// (idle/acceleration/cruise/deceleration/idle), just themed to a
// 3-zone heating cycle instead of an engine RPM trace.
func defaultPrograms() map[zone.Zone]zoneProgram {
	return map[zone.Zone]zoneProgram{
		zone.Preheat: {ambientF: 75, targetF: 300, idleS: 10, rampS: 180, stableS: 420, endS: 30, noiseF: 1.5},
		zone.Main:    {ambientF: 75, targetF: 350, idleS: 10, rampS: 210, stableS: 600, endS: 30, noiseF: 1.5},
		zone.Rib:     {ambientF: 75, targetF: 325, idleS: 10, rampS: 200, stableS: 540, endS: 30, noiseF: 1.5},
	}
}

// Simulator is a deterministic, in-process sample.Source generating a
// repeating ramp/stable/end waveform per zone. Elapsed time is tracked
// as an internal counter advanced once per GetLatest call (the teacher's
// Simulator.tick pattern) rather than read from the wall clock, so a
// caller can drive it through a full cycle in a tight test loop without
// sleeping.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	stepS    float64
	elapsedS map[zone.Zone]float64
	programs map[zone.Zone]zoneProgram
}

// NewSimulator builds a Simulator advancing stepS simulated seconds per
// GetLatest call, seeded from seed for reproducible noise.
func NewSimulator(seed int64, stepS float64) *Simulator {
	if stepS <= 0 {
		stepS = 2.0
	}
	return &Simulator{
		rng:      rand.New(rand.NewSource(seed)),
		stepS:    stepS,
		elapsedS: make(map[zone.Zone]float64),
		programs: defaultPrograms(),
	}
}

// WithProgram overrides the waveform for a single zone, for tests and
// for operators who want a faster or slower demo cycle than the default.
func (s *Simulator) WithProgram(z zone.Zone, ambientF, targetF, idleS, rampS, stableS, endS, noiseF float64) *Simulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[z] = zoneProgram{
		ambientF: ambientF, targetF: targetF,
		idleS: idleS, rampS: rampS, stableS: stableS, endS: endS,
		noiseF: noiseF,
	}
	return s
}

// GetLatest advances z's internal clock by one step and returns the
// waveform value at the new position.
func (s *Simulator) GetLatest(z zone.Zone) (sample.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prog, ok := s.programs[z]
	if !ok {
		return sample.Sample{}, fmt.Errorf("simulator has no program for zone %s", z)
	}

	s.elapsedS[z] += s.stepS
	elapsed := s.elapsedS[z]
	cyclePos := math.Mod(elapsed, prog.cycleLen())

	temp, setpoint := s.valueAt(prog, cyclePos)

	now := time.Now()
	return sample.Sample{
		Zone:         z,
		T:            now,
		Wall:         now,
		TemperatureF: clamp(s.noise(temp, prog.noiseF), 0, 2000),
		SetpointF:    setpoint,
		Valid:        true,
	}, nil
}

// valueAt computes the noiseless temperature and the exact setpoint for
// a position within one cycle: setpoint jumps to target at the start of
// ramp and drops back to ambient at the start of end, exactly the two
// discontinuities detector.Detector's stage triggers key on; temperature
// moves linearly toward whatever the current setpoint is.
func (s *Simulator) valueAt(p zoneProgram, pos float64) (temp, setpoint float64) {
	switch {
	case pos < p.idleS:
		return p.ambientF, p.ambientF

	case pos < p.idleS+p.rampS:
		frac := (pos - p.idleS) / p.rampS
		return p.ambientF + frac*(p.targetF-p.ambientF), p.targetF

	case pos < p.idleS+p.rampS+p.stableS:
		return p.targetF, p.targetF

	default:
		endPos := pos - (p.idleS + p.rampS + p.stableS)
		frac := endPos / p.endS
		return p.targetF + frac*(p.ambientF-p.targetF), p.ambientF
	}
}

func (s *Simulator) noise(base, amplitude float64) float64 {
	if amplitude <= 0 {
		return base
	}
	return base + (s.rng.Float64()*2-1)*amplitude
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
