package dispatch

import (
	"fmt"

	"github.com/kilianp07/resqroute/core/model"
	"github.com/kilianp07/resqroute/core/scoring"
)

// MassCasualtyActual scores mass-casualty requests with the reported type and
// severity instead of the fixed context.
const MassCasualtyActual = "actual"

// MassCasualtyConfig is the scoring context used when several ambulances are
// requested at once.
type MassCasualtyConfig struct {
	// Context is "fixed" or "actual".
	Context       string         `json:"context"`
	EmergencyType string         `json:"emergency_type"`
	Severity      model.Severity `json:"severity"`
}

// Config defines dispatch-related settings.
type Config struct {
	// ClaimAttempts bounds how many ranked candidates are tried when claims
	// are lost to concurrent incidents.
	ClaimAttempts      int                `json:"claim_attempts"`
	StationLimit       int                `json:"station_limit"`
	PrivateDefaultCost float64            `json:"private_default_cost"`
	TrafficFactor      float64            `json:"traffic_factor"`
	MassCasualty       MassCasualtyConfig `json:"mass_casualty"`
	Scoring            scoring.Config     `json:"scoring"`
}

func (c *Config) SetDefaults() {
	if c.ClaimAttempts <= 0 {
		c.ClaimAttempts = 5
	}
	if c.StationLimit <= 0 {
		c.StationLimit = 3
	}
	if c.PrivateDefaultCost <= 0 {
		c.PrivateDefaultCost = 15000
	}
	if c.TrafficFactor <= 0 {
		c.TrafficFactor = 1
	}
	if c.MassCasualty.Context == "" {
		c.MassCasualty.Context = "fixed"
	}
	if c.MassCasualty.EmergencyType == "" {
		c.MassCasualty.EmergencyType = model.EmergencyAccident
	}
	if c.MassCasualty.Severity == "" {
		c.MassCasualty.Severity = model.SeverityHigh
	}
	c.Scoring.SetDefaults()
}

func (c Config) Validate() error {
	if c.MassCasualty.Context != "fixed" && c.MassCasualty.Context != MassCasualtyActual {
		return fmt.Errorf("dispatch: mass_casualty.context must be fixed or actual, got %q", c.MassCasualty.Context)
	}
	switch c.MassCasualty.Severity {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
	default:
		return fmt.Errorf("dispatch: invalid mass_casualty.severity %q", c.MassCasualty.Severity)
	}
	return nil
}
