package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/resqroute/core/audit"
	"github.com/kilianp07/resqroute/core/corridor"
	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/metrics"
	"github.com/kilianp07/resqroute/infra/mqtt"
	"github.com/kilianp07/resqroute/infra/redisclaim"
	"github.com/kilianp07/resqroute/infra/store"
)

// EnvPrefix marks environment overrides: RESQ_MQTT__BROKER sets mqtt.broker.
const EnvPrefix = "RESQ_"

type Config struct {
	MQTT     mqtt.Config       `json:"mqtt"`
	Dispatch dispatch.Config   `json:"dispatch"`
	Corridor corridor.Config   `json:"corridor"`
	Tracking TrackingConfig    `json:"tracking"`
	Logging  LoggingConfig     `json:"logging"`
	Audit    audit.Config      `json:"audit"`
	Store    store.Config      `json:"store"`
	Redis    redisclaim.Config `json:"redis"`
	Metrics  metrics.Config    `json:"metrics"`
	Sentry   SentryConfig      `json:"sentry"`
	Seed     SeedConfig        `json:"seed"`
	API      APIConfig         `json:"api"`
}

// Load reads path (YAML or JSON by extension), applies RESQ_ environment
// overrides, then fills defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Corridor.SetDefaults()
	c.Tracking.SetDefaults()
	c.Logging.SetDefaults()
	c.Audit.SetDefaults()
	c.Store.SetDefaults()
	c.Redis.SetDefaults()
}

// Validate reports the problems of every section at once.
func (c Config) Validate() error {
	return errors.Join(
		c.MQTT.Validate(),
		c.Dispatch.Validate(),
		c.Corridor.Validate(),
		c.Tracking.Validate(),
		c.Logging.Validate(),
		c.Audit.Validate(),
		c.Store.Validate(),
	)
}
