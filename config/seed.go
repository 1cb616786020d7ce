package config

// SeedConfig lists the files loaded into the signal network and the
// candidate registry at start.
type SeedConfig struct {
	Files []string `json:"files"`
}
