package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/resqroute/core/dispatch"
	"github.com/kilianp07/resqroute/core/model"
)

// SQLiteRepository persists incidents in a SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates the database at path and ensures schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS incidents (
        id TEXT PRIMARY KEY,
        domain TEXT NOT NULL,
        status TEXT NOT NULL,
        terminal INTEGER NOT NULL,
        created_at INTEGER NOT NULL,
        doc TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS incidents_open ON incidents (terminal, created_at);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Persist(ctx context.Context, inc *model.Incident) error {
	doc, err := encode(inc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO incidents (id, domain, status, terminal, created_at, doc)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET status = excluded.status, terminal = excluded.terminal, doc = excluded.doc`,
		inc.ID, string(inc.Domain), string(inc.Status), inc.Status.Terminal(), inc.CreatedAt.UnixNano(), string(doc))
	return err
}

func (r *SQLiteRepository) Load(ctx context.Context, id string) (*model.Incident, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM incidents WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrIncidentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(doc))
}

func (r *SQLiteRepository) ListActive(ctx context.Context) ([]*model.Incident, error) {
	return r.query(ctx, `SELECT doc FROM incidents WHERE terminal = 0 ORDER BY created_at, id`)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*model.Incident, error) {
	return r.query(ctx, `SELECT doc FROM incidents ORDER BY created_at, id`)
}

func (r *SQLiteRepository) query(ctx context.Context, q string) ([]*model.Incident, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Incident
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		inc, err := decode([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error { return r.db.Close() }
