package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/scythe504/sketchrooms-backend/internal/content/migrations"
)

// PostgresCatalog serves prompts from the prompts table.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// NewPostgresCatalog migrates the schema and opens a pool.
func NewPostgresCatalog(ctx context.Context, url string) (*PostgresCatalog, error) {
	if err := migrations.Migrate(ctx, url); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect prompt catalog: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping prompt catalog: %w", err)
	}
	return &PostgresCatalog{pool: pool}, nil
}

func (c *PostgresCatalog) Close() {
	c.pool.Close()
}

func (c *PostgresCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT count(*) FROM prompts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count prompts: %w", err)
	}
	return n, nil
}

func (c *PostgresCatalog) SampleIDs(ctx context.Context, n int) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM prompts ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("sample prompts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("sample prompts: %w", err)
	}
	if len(ids) < n {
		return nil, fmt.Errorf("sample %d prompts from a pool of %d: %w", n, len(ids), internal.ErrInvalidSettings)
	}
	return ids, nil
}

func (c *PostgresCatalog) Get(ctx context.Context, id string) (internal.Prompt, error) {
	var p internal.Prompt
	err := c.pool.QueryRow(ctx,
		`SELECT id, name, difficulty, outline FROM prompts WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Difficulty, &p.Outline)
	if errors.Is(err, pgx.ErrNoRows) {
		return internal.Prompt{}, fmt.Errorf("prompt %q: %w", id, internal.ErrPromptNotFound)
	}
	if err != nil {
		return internal.Prompt{}, fmt.Errorf("get prompt %q: %w", id, err)
	}
	return p, nil
}

// Seed upserts prompts in one batch.
func (c *PostgresCatalog) Seed(ctx context.Context, prompts []internal.Prompt) error {
	batch := &pgx.Batch{}
	for _, p := range prompts {
		batch.Queue(`
			INSERT INTO prompts (id, name, difficulty, outline)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, difficulty = EXCLUDED.difficulty, outline = EXCLUDED.outline`,
			p.ID, p.Name, p.Difficulty, p.Outline)
	}
	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed prompts: %w", err)
	}
	return nil
}
