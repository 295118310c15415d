package coordinator

import (
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/detector"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// RunCheckpoint is the serializable form of an in-progress run, if one is
// open at checkpoint time.
type RunCheckpoint struct {
	RunID          string                         `json:"runId"`
	LineID         string                         `json:"lineId"`
	StartedAt      time.Time                      `json:"startedAt"`
	CycleOrder     []zone.Zone                    `json:"cycleOrder"`
	CurrentZoneIdx int                            `json:"currentZoneIdx"`
	ZoneRecords    map[zone.Zone][]StageRecord    `json:"zoneRecords"`

	Termination  TerminationKind `json:"termination"`
	TerminatedAt time.Time       `json:"terminatedAt"`
	Partial      bool            `json:"partial"`

	AwaitingRecoverySince time.Time `json:"awaitingRecoverySince"`
}

// Checkpoint is the serializable form of a Coordinator's full live state:
// every zone detector plus the in-progress run, if any. The State Sink
// persists this once per tick (spec.md §4.5); restoring it lets a worker
// restart mid-run without replaying history.
type Checkpoint struct {
	LineID       string                     `json:"lineId"`
	Detectors    map[zone.Zone]detector.Checkpoint `json:"detectors"`
	Run          *RunCheckpoint             `json:"run,omitempty"`
	LastSetpoint map[zone.Zone]float64      `json:"lastSetpoint"`
}

// ToCheckpoint captures the coordinator's exact state, including every
// zone detector and the open run (if any).
func (c *Coordinator) ToCheckpoint() Checkpoint {
	dets := make(map[zone.Zone]detector.Checkpoint, len(c.detectors))
	for z, d := range c.detectors {
		dets[z] = d.ToCheckpoint()
	}

	lastSetpoint := make(map[zone.Zone]float64, len(c.lastSetpoint))
	for z, v := range c.lastSetpoint {
		lastSetpoint[z] = v
	}

	cp := Checkpoint{
		LineID:       c.lineID,
		Detectors:    dets,
		LastSetpoint: lastSetpoint,
	}

	if c.run != nil {
		records := make(map[zone.Zone][]StageRecord, len(c.run.ZoneRecords))
		for z, recs := range c.run.ZoneRecords {
			cpRecs := make([]StageRecord, len(recs))
			copy(cpRecs, recs)
			records[z] = cpRecs
		}
		cp.Run = &RunCheckpoint{
			RunID:                 c.run.RunID,
			LineID:                c.run.LineID,
			StartedAt:             c.run.StartedAt,
			CycleOrder:            append([]zone.Zone(nil), c.run.CycleOrder...),
			CurrentZoneIdx:        c.run.CurrentZoneIdx,
			ZoneRecords:           records,
			Termination:           c.run.Termination,
			TerminatedAt:          c.run.TerminatedAt,
			Partial:               c.run.Partial,
			AwaitingRecoverySince: c.run.awaitingRecoverySince,
		}
	}

	return cp
}

// FromCheckpoint restores a coordinator to a previously captured state for
// the given (possibly reloaded) config. The coordinator's cycle order comes
// from cfg's zone enablement; it is not checked against the checkpoint's
// run cycle order.
func FromCheckpoint(cp Checkpoint, cfg config.Config) *Coordinator {
	order := zone.EnabledOrder([]zone.Config{
		{Zone: zone.Preheat, Enabled: cfg.Zones.Preheat},
		{Zone: zone.Main, Enabled: cfg.Zones.Main},
		{Zone: zone.Rib, Enabled: cfg.Zones.Rib},
	})

	dets := make(map[zone.Zone]*detector.Detector, len(cp.Detectors))
	for z, dcp := range cp.Detectors {
		dets[z] = detector.FromCheckpoint(dcp, cfg)
	}

	lastSetpoint := make(map[zone.Zone]float64, len(cp.LastSetpoint))
	for z, v := range cp.LastSetpoint {
		lastSetpoint[z] = v
	}

	c := &Coordinator{
		lineID:       cp.LineID,
		cfg:          cfg,
		cycleOrder:   order,
		detectors:    dets,
		lastSetpoint: lastSetpoint,
	}

	if cp.Run != nil {
		records := make(map[zone.Zone][]StageRecord, len(cp.Run.ZoneRecords))
		for z, recs := range cp.Run.ZoneRecords {
			runRecs := make([]StageRecord, len(recs))
			copy(runRecs, recs)
			records[z] = runRecs
		}
		c.run = &run{
			RunID:                 cp.Run.RunID,
			LineID:                cp.Run.LineID,
			StartedAt:             cp.Run.StartedAt,
			CycleOrder:            append([]zone.Zone(nil), cp.Run.CycleOrder...),
			CurrentZoneIdx:        cp.Run.CurrentZoneIdx,
			ZoneRecords:           records,
			Termination:           cp.Run.Termination,
			TerminatedAt:          cp.Run.TerminatedAt,
			Partial:               cp.Run.Partial,
			awaitingRecoverySince: cp.Run.AwaitingRecoverySince,
		}
	}

	return c
}
