// Package config provides configuration management for wasteops.
// Configurations are loaded from TOML files with XDG-compliant paths.
package config

import (
	"errors"
	"fmt"
)

// Config holds the complete application configuration.
type Config struct {
	Park     ParkConfig     `toml:"park"`
	Lots     LotsConfig     `toml:"lots"`
	Cycles   CyclesConfig   `toml:"cycles"`
	Planning PlanningConfig `toml:"planning"`
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
}

// ParkConfig identifies the park the CLI operates on by default.
type ParkConfig struct {
	Code     string `toml:"code"`
	Name     string `toml:"name"`
	Operator string `toml:"operator"`
}

// LotsConfig controls lot numbering, entry grading and the quality index.
type LotsConfig struct {
	LotNumberPrefix string        `toml:"lot_number_prefix"`
	LQI             LQIConfig     `toml:"lqi"`
	Grading         GradingConfig `toml:"grading"`
}

// LQIConfig holds the relative weights of the lot quality index inputs.
type LQIConfig struct {
	RawWeight         float64 `toml:"raw_weight"`
	TransformedWeight float64 `toml:"transformed_weight"`
	YieldWeight       float64 `toml:"yield_weight"`
}

// GradingConfig holds the grade penalties applied to inspected entries.
type GradingConfig struct {
	DivergencePenalty         float64 `toml:"divergence_penalty"`
	MajorDivergencePenalty    float64 `toml:"major_divergence_penalty"`
	CriticalDivergencePenalty float64 `toml:"critical_divergence_penalty"`
}

// CyclesConfig controls the production-cycle predictor.
type CyclesConfig struct {
	// ConfidenceSaturation is the number of extra intervals after which the
	// sample-size factor reaches ~63% of its asymptote.
	ConfidenceSaturation float64 `toml:"confidence_saturation"`
	Workers              int     `toml:"workers"`
}

// PlanningConfig controls collection-order planning scores.
type PlanningConfig struct {
	PriorityWeight  float64        `toml:"priority_weight"`
	SLAWeight       float64        `toml:"sla_weight"`
	CycleWeight     float64        `toml:"cycle_weight"`
	PriorityPoints  PriorityPoints `toml:"priority_points"`
	SLAHorizonHours float64        `toml:"sla_horizon_hours"`
	NeutralSLA      float64        `toml:"neutral_sla"`
	CycleWindowDays float64        `toml:"cycle_window_days"`
}

// PriorityPoints maps each order priority to a 0-100 component value.
type PriorityPoints struct {
	Normal   float64 `toml:"normal"`
	Urgent   float64 `toml:"urgent"`
	Critical float64 `toml:"critical"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level LogLevel `toml:"level"`
	File  string   `toml:"file"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig controls SQLite database settings.
type DatabaseConfig struct {
	Path             string `toml:"path"`
	BusyRetries      int    `toml:"busy_retries"`
	BusyRetryDelayMs int    `toml:"busy_retry_delay_ms"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Park.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("park: %w", err))
	}

	if err := c.Lots.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lots: %w", err))
	}

	if err := c.Cycles.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cycles: %w", err))
	}

	if err := c.Planning.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("planning: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the park configuration is valid.
func (p *ParkConfig) Validate() error {
	if p.Code == "" {
		return errors.New("code is required")
	}
	return nil
}

// Validate checks that the lots configuration is valid.
func (l *LotsConfig) Validate() error {
	var errs []error

	if err := l.LQI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("lqi: %w", err))
	}

	g := l.Grading
	if g.DivergencePenalty < 0 || g.MajorDivergencePenalty < 0 || g.CriticalDivergencePenalty < 0 {
		errs = append(errs, errors.New("grading penalties must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the LQI weights are usable.
func (q *LQIConfig) Validate() error {
	if q.RawWeight < 0 || q.TransformedWeight < 0 || q.YieldWeight < 0 {
		return errors.New("weights must be non-negative")
	}
	if q.RawWeight+q.TransformedWeight == 0 {
		return errors.New("raw_weight and transformed_weight cannot both be zero")
	}
	return nil
}

// Validate checks that the cycles configuration is valid.
func (c *CyclesConfig) Validate() error {
	var errs []error

	if c.ConfidenceSaturation <= 0 {
		errs = append(errs, errors.New("confidence_saturation must be positive"))
	}

	if c.Workers < 0 {
		errs = append(errs, errors.New("workers must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the planning configuration is valid.
func (p *PlanningConfig) Validate() error {
	var errs []error

	if p.PriorityWeight < 0 || p.SLAWeight < 0 || p.CycleWeight < 0 {
		errs = append(errs, errors.New("weights must be non-negative"))
	}

	if p.PriorityWeight+p.SLAWeight+p.CycleWeight == 0 {
		errs = append(errs, errors.New("at least one weight must be positive"))
	}

	pts := p.PriorityPoints
	if !(pts.Critical > pts.Urgent && pts.Urgent > pts.Normal) {
		errs = append(errs, errors.New("priority_points must satisfy critical > urgent > normal"))
	}

	if pts.Normal < 0 || pts.Critical > 100 {
		errs = append(errs, errors.New("priority_points must be within 0-100"))
	}

	if p.SLAHorizonHours <= 0 {
		errs = append(errs, errors.New("sla_horizon_hours must be positive"))
	}

	if p.NeutralSLA < 0 || p.NeutralSLA > 100 {
		errs = append(errs, errors.New("neutral_sla must be between 0 and 100"))
	}

	if p.CycleWindowDays <= 0 {
		errs = append(errs, errors.New("cycle_window_days must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}

	if !validLevels[l.Level] && l.Level != "" {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	return nil
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}

	if d.BusyRetries < 0 {
		errs = append(errs, errors.New("busy_retries must be non-negative"))
	}

	if d.BusyRetryDelayMs < 0 {
		errs = append(errs, errors.New("busy_retry_delay_ms must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Park: ParkConfig{
			Code:     "PRK01",
			Name:     "Main Park",
			Operator: "operator",
		},
		Lots: LotsConfig{
			LotNumberPrefix: "L-",
			LQI: LQIConfig{
				RawWeight:         0.3,
				TransformedWeight: 0.5,
				YieldWeight:       0.2,
			},
			Grading: GradingConfig{
				DivergencePenalty:         0.5,
				MajorDivergencePenalty:    1.0,
				CriticalDivergencePenalty: 2.0,
			},
		},
		Cycles: CyclesConfig{
			ConfidenceSaturation: 4,
			Workers:              4,
		},
		Planning: PlanningConfig{
			PriorityWeight: 0.5,
			SLAWeight:      0.3,
			CycleWeight:    0.2,
			PriorityPoints: PriorityPoints{
				Normal:   20,
				Urgent:   60,
				Critical: 100,
			},
			SLAHorizonHours: 14 * 24,
			NeutralSLA:      50,
			CycleWindowDays: 7,
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
			File:  "",
		},
		Database: DatabaseConfig{
			Path:             "wasteops.db",
			BusyRetries:      10,
			BusyRetryDelayMs: 100,
		},
	}
}
