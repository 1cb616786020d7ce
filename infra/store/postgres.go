package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/model"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS incidents (
    id TEXT PRIMARY KEY,
    domain TEXT NOT NULL,
    status TEXT NOT NULL,
    terminal BOOLEAN NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    doc JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS incidents_open ON incidents (terminal, created_at)`

// PostgresRepository persists incidents in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and ensures schema.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Persist(ctx context.Context, inc *model.Incident) error {
	doc, err := encode(inc)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
        INSERT INTO incidents (id, domain, status, terminal, created_at, doc)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE
        SET status = EXCLUDED.status, terminal = EXCLUDED.terminal, doc = EXCLUDED.doc`,
		inc.ID, string(inc.Domain), string(inc.Status), inc.Status.Terminal(), inc.CreatedAt, doc)
	return err
}

func (r *PostgresRepository) Load(ctx context.Context, id string) (*model.Incident, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM incidents WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]*model.Incident, error) {
	return r.query(ctx, `SELECT doc FROM incidents WHERE NOT terminal ORDER BY created_at, id`)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*model.Incident, error) {
	return r.query(ctx, `SELECT doc FROM incidents ORDER BY created_at, id`)
}

func (r *PostgresRepository) query(ctx context.Context, q string) ([]*model.Incident, error) {
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Incident
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		inc, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Truncate removes every incident. Used by tests.
func (r *PostgresRepository) Truncate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `TRUNCATE TABLE incidents`)
	return err
}

func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
