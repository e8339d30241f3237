package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	code       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores rooms in a single table through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url, checks the connection and creates the
// rooms table if needed.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, id string) (Room, error) {
	r := Room{ID: id}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO rooms (id) VALUES ($1) RETURNING code, created_at, updated_at`, id,
	).Scan(&r.Code, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Room{}, fmt.Errorf("create room %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Room, error) {
	r := Room{ID: id}
	err := p.pool.QueryRow(ctx,
		`SELECT code, created_at, updated_at FROM rooms WHERE id = $1`, id,
	).Scan(&r.Code, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) SaveCode(ctx context.Context, id, code string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE rooms SET code = $2, updated_at = now() WHERE id = $1`, id, code)
	if err != nil {
		return fmt.Errorf("save room %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }
