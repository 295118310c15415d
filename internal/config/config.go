// Package config loads and validates the versioned configuration object
// the core is started with (spec.md §3 and §6). Configuration is
// immutable within a run: a reload that arrives mid-run is queued and
// only takes effect for the next run (spec.md §6 "Configuration ingress").
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the versioned, immutable-within-a-run configuration object
// passed to the worker at start. Field names mirror spec.md §3's table.
type Config struct {
	Version int `mapstructure:"version"`

	LineID string `mapstructure:"line_id"`

	Zones ZonesConfig `mapstructure:"zones"`

	SamplingPeriodS               float64 `mapstructure:"sampling_period_s"`
	TolF                          float64 `mapstructure:"tol_f"`
	DeltaRampF                    float64 `mapstructure:"delta_ramp_f"`
	DTMinFPerMin                  float64 `mapstructure:"dt_min_f_per_min"`
	TStableS                      float64 `mapstructure:"t_stable_s"`
	DeltaOffF                     float64 `mapstructure:"delta_off_f"`
	TOffSustainS                  float64 `mapstructure:"t_off_sustain_s"`
	SMinF                         float64 `mapstructure:"s_min_f"`
	TSpSustainS                   float64 `mapstructure:"t_sp_sustain_s"`
	MaxRampS                      float64 `mapstructure:"max_ramp_s"`
	MaxStageS                     float64 `mapstructure:"max_stage_s"`
	QuietWindowS                  float64 `mapstructure:"quiet_window_s"`
	DTQuietFPerMin                float64 `mapstructure:"dt_quiet_f_per_min"`
	AllowMainWithoutPreheat       bool    `mapstructure:"allow_main_without_preheat"`
	ContinueAfterFaultIfNextRamps bool    `mapstructure:"continue_after_fault_if_next_stage_ramps"`
}

// ZonesConfig toggles which cycle zones are enabled for a line.
type ZonesConfig struct {
	Preheat bool `mapstructure:"preheat"`
	Main    bool `mapstructure:"main"`
	Rib     bool `mapstructure:"rib"`
}

// SamplingPeriod returns SamplingPeriodS as a time.Duration.
func (c Config) SamplingPeriod() time.Duration {
	return time.Duration(c.SamplingPeriodS * float64(time.Second))
}

// MaxAge is the staleness ceiling applied to a fetched sample:
// 3x the sampling period, per spec.md §4.4 step 1.
func (c Config) MaxAge() time.Duration {
	return 3 * c.SamplingPeriod()
}

// Default returns the spec.md §3 default configuration with all zones
// enabled and version 1.
func Default() Config {
	return Config{
		Version:                       1,
		LineID:                        "line-1",
		Zones:                         ZonesConfig{Preheat: true, Main: true, Rib: true},
		SamplingPeriodS:               2.0,
		TolF:                          8,
		DeltaRampF:                    20,
		DTMinFPerMin:                  10,
		TStableS:                      90,
		DeltaOffF:                     20,
		TOffSustainS:                  45,
		SMinF:                         20,
		TSpSustainS:                   20,
		MaxRampS:                      900,
		MaxStageS:                     7200,
		QuietWindowS:                  720,
		DTQuietFPerMin:                2,
		AllowMainWithoutPreheat:       true,
		ContinueAfterFaultIfNextRamps: true,
	}
}

// Load reads a YAML configuration file, applying spec.md §3 defaults for
// any key left unset, then validates the result. On any validation
// failure it returns a wrapped error — callers must treat this as
// spec.md §7's ConfigInvalid: refuse to start the worker.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("version", d.Version)
	v.SetDefault("line_id", d.LineID)
	v.SetDefault("zones.preheat", d.Zones.Preheat)
	v.SetDefault("zones.main", d.Zones.Main)
	v.SetDefault("zones.rib", d.Zones.Rib)
	v.SetDefault("sampling_period_s", d.SamplingPeriodS)
	v.SetDefault("tol_f", d.TolF)
	v.SetDefault("delta_ramp_f", d.DeltaRampF)
	v.SetDefault("dt_min_f_per_min", d.DTMinFPerMin)
	v.SetDefault("t_stable_s", d.TStableS)
	v.SetDefault("delta_off_f", d.DeltaOffF)
	v.SetDefault("t_off_sustain_s", d.TOffSustainS)
	v.SetDefault("s_min_f", d.SMinF)
	v.SetDefault("t_sp_sustain_s", d.TSpSustainS)
	v.SetDefault("max_ramp_s", d.MaxRampS)
	v.SetDefault("max_stage_s", d.MaxStageS)
	v.SetDefault("quiet_window_s", d.QuietWindowS)
	v.SetDefault("dt_quiet_f_per_min", d.DTQuietFPerMin)
	v.SetDefault("allow_main_without_preheat", d.AllowMainWithoutPreheat)
	v.SetDefault("continue_after_fault_if_next_stage_ramps", d.ContinueAfterFaultIfNextRamps)
}

// Validate checks the configuration for internal consistency. A failure
// here is spec.md §7's ConfigInvalid — fatal at worker start, the only
// error kind the core surfaces as a hard failure.
func (c Config) Validate() error {
	if c.LineID == "" {
		return fmt.Errorf("line_id must not be empty")
	}
	if !c.Zones.Preheat && !c.Zones.Main && !c.Zones.Rib {
		return fmt.Errorf("at least one zone must be enabled")
	}
	if c.SamplingPeriodS <= 0 {
		return fmt.Errorf("sampling_period_s must be > 0, got %v", c.SamplingPeriodS)
	}
	if c.TolF < 0 {
		return fmt.Errorf("tol_f must be >= 0, got %v", c.TolF)
	}
	if c.DeltaRampF <= 0 {
		return fmt.Errorf("delta_ramp_f must be > 0, got %v", c.DeltaRampF)
	}
	if c.TStableS <= 0 {
		return fmt.Errorf("t_stable_s must be > 0, got %v", c.TStableS)
	}
	if c.TOffSustainS <= 0 {
		return fmt.Errorf("t_off_sustain_s must be > 0, got %v", c.TOffSustainS)
	}
	if c.MaxRampS <= 0 {
		return fmt.Errorf("max_ramp_s must be > 0, got %v", c.MaxRampS)
	}
	if c.MaxStageS <= c.MaxRampS {
		return fmt.Errorf("max_stage_s (%v) must exceed max_ramp_s (%v)", c.MaxStageS, c.MaxRampS)
	}
	if c.QuietWindowS <= 0 {
		return fmt.Errorf("quiet_window_s must be > 0, got %v", c.QuietWindowS)
	}
	return nil
}

// RingCapacity is the minimum sample-history ring capacity for the quiet
// window slope computation, per spec.md §4.3.
func (c Config) RingCapacity() int {
	n := int(c.QuietWindowS/c.SamplingPeriodS) + 8
	if n < 8 {
		n = 8
	}
	return n
}
