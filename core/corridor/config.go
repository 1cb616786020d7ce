package corridor

import (
	"fmt"
	"time"

	"github.com/kilianp07/resqroute/core/model"
)

// TieBreak decides equal priority contention.
type TieBreak string

const (
	NewestWins    TieBreak = "newest_wins"
	IncumbentWins TieBreak = "incumbent_wins"
)

// Config tunes the coordinator.
type Config struct {
	BufferRadiusM   float64       `json:"buffer_radius_m"`
	DefaultDuration time.Duration `json:"default_duration"`
	MaxLifetime     time.Duration `json:"max_lifetime"`
	SweepInterval   time.Duration `json:"sweep_interval"`
	TieBreak        TieBreak      `json:"tie_break"`
	// OperatorPriority is used for manual overrides without a priority.
	OperatorPriority int         `json:"operator_priority"`
	Source           string      `json:"source"`
	NormalCycle      model.Cycle `json:"normal_cycle"`
	HistorySize      int         `json:"history_size"`
}

func (c *Config) SetDefaults() {
	if c.BufferRadiusM <= 0 {
		c.BufferRadiusM = 500
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 2 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.TieBreak == "" {
		c.TieBreak = NewestWins
	}
	if c.OperatorPriority <= 0 {
		c.OperatorPriority = 10
	}
	if c.Source == "" {
		c.Source = "resqroute"
	}
	if c.NormalCycle == (model.Cycle{}) {
		c.NormalCycle = model.DefaultCycle
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 4096
	}
}

func (c Config) Validate() error {
	if c.TieBreak != NewestWins && c.TieBreak != IncumbentWins {
		return fmt.Errorf("corridor: unknown tie_break %q", c.TieBreak)
	}
	if c.MaxLifetime < c.DefaultDuration {
		return fmt.Errorf("corridor: max_lifetime %s shorter than default_duration %s", c.MaxLifetime, c.DefaultDuration)
	}
	return nil
}
