package content

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
)

// Open picks the prompt catalog: Postgres when databaseURL is set, otherwise
// an in-memory catalog read from promptsFile or the built-in prompts. A
// Postgres catalog with no rows is seeded from the same file or built-ins.
// The returned func releases the catalog's resources.
func Open(ctx context.Context, databaseURL, promptsFile string, log zerolog.Logger) (Catalog, func(), error) {
	prompts, err := loadPrompts(promptsFile, log)
	if err != nil {
		return nil, nil, err
	}

	if databaseURL == "" {
		log.Info().Int("prompts", len(prompts)).Msg("using in-memory prompt catalog")
		return NewMemoryCatalog(prompts), func() {}, nil
	}

	pg, err := NewPostgresCatalog(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	n, err := pg.Count(ctx)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	if n == 0 {
		if err := pg.Seed(ctx, prompts); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("seed prompts: %w", err)
		}
		log.Info().Int("prompts", len(prompts)).Msg("seeded empty prompt table")
	}
	return pg, pg.Close, nil
}

func loadPrompts(path string, log zerolog.Logger) ([]internal.Prompt, error) {
	if path == "" {
		c, err := DefaultCatalog(log)
		if err != nil {
			return nil, err
		}
		return c.All(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts file: %w", err)
	}
	defer f.Close()

	prompts, err := ReadCSV(f, log)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("prompts file %s has no usable prompts", path)
	}
	return prompts, nil
}
