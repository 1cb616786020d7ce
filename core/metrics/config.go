package metrics

import "github.com/kilianp07/resqroute/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PromAddr serves /metrics when set, e.g. ":2112".
	PromAddr string `json:"prom_addr"`
}
