package detector

import (
	"time"

	"github.com/kbuckham/zonewatch/internal/config"
	"github.com/kbuckham/zonewatch/internal/sample"
	"github.com/kbuckham/zonewatch/internal/stats"
	"github.com/kbuckham/zonewatch/internal/zone"
)

// Checkpoint is the serializable form of a Detector's state, persisted
// by the State Sink so a restart can reconstitute ZoneState exactly —
// including the Welford moments — without replaying history.
type Checkpoint struct {
	Zone zone.Zone `json:"zone"`

	Stage              StageKind `json:"stage"`
	StageEnteredAt     time.Time `json:"stageEnteredAt"`
	ZoneStageStartedAt time.Time `json:"zoneStageStartedAt"`

	LastSample sample.Sample `json:"lastSample"`
	HaveLast   bool          `json:"haveLast"`

	LastAcceptedSetpoint float64 `json:"lastAcceptedSetpoint"`
	HaveSetpoint         bool    `json:"haveSetpoint"`

	HaveInBand      bool      `json:"haveInBand"`
	InBandSince     time.Time `json:"inBandSince"`
	HaveOutOfBand   bool      `json:"haveOutOfBand"`
	OutOfBandSince  time.Time `json:"outOfBandSince"`
	OffBandFromJump bool      `json:"offBandFromJump"`

	Baseline float64 `json:"baseline"`

	Stats stats.Checkpoint `json:"stats"`

	ConsecutiveInvalid int `json:"consecutiveInvalid"`

	Ring []RingPoint `json:"ring"`
}

// ToCheckpoint captures the detector's exact state, including the trailing
// sample-history ring: it backs the 60s thermal-ramp slope/baseline fit and
// the coordinator's quiet-window slope fit, so dropping it would let a
// restart mid-window change event timing relative to an uninterrupted run.
func (d *Detector) ToCheckpoint() Checkpoint {
	return Checkpoint{
		Zone:                 d.zone,
		Stage:                d.stage,
		StageEnteredAt:       d.stageEnteredAt,
		ZoneStageStartedAt:   d.zoneStageStartedAt,
		LastSample:           d.lastSample,
		HaveLast:             d.haveLast,
		LastAcceptedSetpoint: d.lastAcceptedSetpoint,
		HaveSetpoint:         d.haveSetpoint,
		HaveInBand:           d.haveInBand,
		InBandSince:          d.inBandSince,
		HaveOutOfBand:        d.haveOutOfBand,
		OutOfBandSince:       d.outOfBandSince,
		OffBandFromJump:      d.offBandFromJump,
		Baseline:             d.baseline,
		Stats:                d.stats.ToCheckpoint(),
		ConsecutiveInvalid:   d.consecutiveInvalid,
		Ring:                 d.ring.snapshot(),
	}
}

// FromCheckpoint restores a detector to a previously captured state for
// the given config (the ring capacity and thresholds come from cfg, not
// the checkpoint, since config may be reloaded between runs).
func FromCheckpoint(c Checkpoint, cfg config.Config) *Detector {
	r := newRing(cfg.RingCapacity())
	r.restore(c.Ring)
	return &Detector{
		zone:                 c.Zone,
		cfg:                  cfg,
		stage:                c.Stage,
		stageEnteredAt:       c.StageEnteredAt,
		zoneStageStartedAt:   c.ZoneStageStartedAt,
		lastSample:           c.LastSample,
		haveLast:             c.HaveLast,
		lastAcceptedSetpoint: c.LastAcceptedSetpoint,
		haveSetpoint:         c.HaveSetpoint,
		haveInBand:           c.HaveInBand,
		inBandSince:          c.InBandSince,
		haveOutOfBand:        c.HaveOutOfBand,
		outOfBandSince:       c.OutOfBandSince,
		offBandFromJump:      c.OffBandFromJump,
		baseline:             c.Baseline,
		stats:                stats.FromCheckpoint(c.Stats),
		ring:                 r,
		consecutiveInvalid:   c.ConsecutiveInvalid,
	}
}
