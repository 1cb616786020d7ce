package config

import (
	"fmt"
	"time"
)

// TrackingConfig controls how long silent vehicles stay on the tracker.
type TrackingConfig struct {
	// MaxAge drops vehicles that did not report for this long.
	MaxAge time.Duration `json:"max_age"`
	// PruneInterval is how often the tracker is pruned.
	PruneInterval time.Duration `json:"prune_interval"`
}

func (c *TrackingConfig) SetDefaults() {
	if c.MaxAge <= 0 {
		c.MaxAge = 30 * time.Minute
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = time.Minute
	}
}

func (c TrackingConfig) Validate() error {
	if c.PruneInterval > c.MaxAge {
		return fmt.Errorf("tracking: prune_interval %s longer than max_age %s", c.PruneInterval, c.MaxAge)
	}
	return nil
}
