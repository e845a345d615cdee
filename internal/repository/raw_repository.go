package repository

import (
	"context"
	"encoding/json"

	"specscrape/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const rawSchema = `
CREATE TABLE IF NOT EXISTS product_specs (
	id            UUID PRIMARY KEY,
	product_type  TEXT NOT NULL,
	endpoint      TEXT NOT NULL,
	name          TEXT NOT NULL,
	brand         TEXT NOT NULL DEFAULT '',
	price         TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	columns       JSONB NOT NULL,
	run_id        TEXT NOT NULL DEFAULT '',
	scraped_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (product_type, endpoint)
)`

// Execer is the part of *pgxpool.Pool the repository needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RawRepository mirrors every scraped row into Postgres. The CSV stays the
// system of record; this copy is for querying.
type RawRepository struct {
	DB          Execer
	ProductType string
	RunID       string
}

func (r *RawRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, rawSchema)
	return err
}

func (r *RawRepository) Save(ctx context.Context, p model.ProductRecord, row model.FlatRow) error {
	columns, err := json.Marshal(row)
	if err != nil {
		return err
	}

	_, err = r.DB.Exec(ctx, `
		INSERT INTO product_specs
		(id, product_type, endpoint, name, brand, price, last_modified, columns, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_type, endpoint) DO UPDATE
		SET name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			price = EXCLUDED.price,
			last_modified = EXCLUDED.last_modified,
			columns = EXCLUDED.columns,
			run_id = EXCLUDED.run_id,
			scraped_at = now()
	`, uuid.New(), r.ProductType, p.URL, p.Name, p.Brand, p.Price, p.LastModified, string(columns), r.RunID)
	return err
}
