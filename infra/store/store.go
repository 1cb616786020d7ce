// Package store holds the durable incident repositories. Each incident is
// kept as one JSON document next to the columns used for lookups.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/model"
)

// Backends understood by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects the incident repository.
type Config struct {
	Backend string `json:"backend"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `json:"dsn"`
}

func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Backend == BackendSQLite && c.DSN == "" {
		c.DSN = "incidents.db"
	}
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("store: postgres backend requires a dsn")
		}
	default:
		return fmt.Errorf("store: unknown backend %q", c.Backend)
	}
	return nil
}

// Repository is an incident repository that can list history and be closed.
type Repository interface {
	dispatch.IncidentRepository
	dispatch.IncidentLister
	Close() error
}

type memoryRepository struct {
	*dispatch.MemoryRepository
}

func (memoryRepository) Close() error { return nil }

// Open builds the repository selected by cfg.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendSQLite:
		return NewSQLiteRepository(cfg.DSN)
	case BackendPostgres:
		return NewPostgresRepository(ctx, cfg.DSN)
	default:
		return memoryRepository{dispatch.NewMemoryRepository()}, nil
	}
}

func encode(inc *model.Incident) ([]byte, error) {
	b, err := json.Marshal(inc)
	if err != nil {
		return nil, fmt.Errorf("encode incident %s: %w", inc.ID, err)
	}
	return b, nil
}

func decode(doc []byte) (*model.Incident, error) {
	var inc model.Incident
	if err := json.Unmarshal(doc, &inc); err != nil {
		return nil, fmt.Errorf("decode incident: %w", err)
	}
	return &inc, nil
}
