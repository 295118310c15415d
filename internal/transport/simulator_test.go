package transport

import (
	"testing"

	"github.com/kbuckham/zonewatch/internal/zone"
)

func TestSimulatorStartsIdleAtAmbient(t *testing.T) {
	sim := NewSimulator(1, 1).WithProgram(zone.Preheat, 75, 300, 10, 20, 20, 10, 0)

	s, err := sim.GetLatest(zone.Preheat)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if s.SetpointF != 75 {
		t.Fatalf("idle setpoint = %v, want ambient 75", s.SetpointF)
	}
	if s.TemperatureF != 75 {
		t.Fatalf("idle temperature = %v, want ambient 75 (noise disabled)", s.TemperatureF)
	}
}

func TestSimulatorRampsThenStabilizesThenEnds(t *testing.T) {
	sim := NewSimulator(1, 1).WithProgram(zone.Preheat, 75, 300, 2, 10, 5, 5, 0)

	var sawRampJump, sawStable, sawEndJump bool
	var prevSetpoint float64 = 75
	var lastTemp float64

	// one full cycle is 2+10+5+5 = 22 simulated seconds, advanced 1s per call.
	for i := 0; i < 22; i++ {
		s, err := sim.GetLatest(zone.Preheat)
		if err != nil {
			t.Fatalf("GetLatest: %v", err)
		}
		if s.SetpointF == 300 && prevSetpoint == 75 {
			sawRampJump = true
		}
		if s.SetpointF == 75 && prevSetpoint == 300 {
			sawEndJump = true
		}
		if s.SetpointF == 300 && s.TemperatureF == 300 {
			sawStable = true
		}
		prevSetpoint = s.SetpointF
		lastTemp = s.TemperatureF
	}

	if !sawRampJump {
		t.Fatalf("expected a setpoint jump from ambient to target at ramp start")
	}
	if !sawStable {
		t.Fatalf("expected temperature to reach target during the stable phase")
	}
	if !sawEndJump {
		t.Fatalf("expected a setpoint drop back to ambient at end-phase start")
	}
	_ = lastTemp
}

func TestSimulatorRejectsUnconfiguredZone(t *testing.T) {
	sim := NewSimulator(1, 1)
	sim.programs = map[zone.Zone]zoneProgram{} // no programs configured at all

	if _, err := sim.GetLatest(zone.Main); err == nil {
		t.Fatalf("expected an error for a zone with no waveform program")
	}
}

func TestClampBounds(t *testing.T) {
	if got := clamp(-5, 0, 100); got != 0 {
		t.Fatalf("clamp below min = %v, want 0", got)
	}
	if got := clamp(500, 0, 100); got != 100 {
		t.Fatalf("clamp above max = %v, want 100", got)
	}
	if got := clamp(50, 0, 100); got != 50 {
		t.Fatalf("clamp within range = %v, want 50", got)
	}
}
