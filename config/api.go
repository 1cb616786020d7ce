package config

// APIConfig configures the operator HTTP surface. An empty Addr disables it.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}

// Enabled reports whether the API should be served.
func (c APIConfig) Enabled() bool { return c.Addr != "" }
