package content

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
)

// Catalog is the pool of prompts rooms draw their rounds from.
type Catalog interface {
	Count(ctx context.Context) (int, error)
	// SampleIDs returns n distinct ids in random order.
	SampleIDs(ctx context.Context, n int) ([]string, error)
	// Get returns internal.ErrPromptNotFound for unknown ids.
	Get(ctx context.Context, id string) (internal.Prompt, error)
}

//go:embed prompts.csv
var defaultPrompts string

// MemoryCatalog serves prompts from memory.
type MemoryCatalog struct {
	mu      sync.RWMutex
	ids     []string
	prompts map[string]internal.Prompt
}

func NewMemoryCatalog(prompts []internal.Prompt) *MemoryCatalog {
	c := &MemoryCatalog{prompts: make(map[string]internal.Prompt, len(prompts))}
	for _, p := range prompts {
		if _, dup := c.prompts[p.ID]; dup {
			continue
		}
		c.ids = append(c.ids, p.ID)
		c.prompts[p.ID] = p
	}
	return c
}

// DefaultCatalog is the built-in prompt pool.
func DefaultCatalog(log zerolog.Logger) (*MemoryCatalog, error) {
	prompts, err := ReadCSV(strings.NewReader(defaultPrompts), log)
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalog(prompts), nil
}

func (c *MemoryCatalog) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids), nil
}

func (c *MemoryCatalog) SampleIDs(_ context.Context, n int) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n > len(c.ids) {
		return nil, fmt.Errorf("sample %d prompts from a pool of %d: %w", n, len(c.ids), internal.ErrInvalidSettings)
	}
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:n], nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (internal.Prompt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prompts[id]
	if !ok {
		return internal.Prompt{}, fmt.Errorf("prompt %q: %w", id, internal.ErrPromptNotFound)
	}
	return p, nil
}

// All returns every prompt in load order.
func (c *MemoryCatalog) All() []internal.Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]internal.Prompt, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.prompts[id])
	}
	return out
}

// ReadCSV parses "id,name,difficulty,outline" records, where outline is a
// list of x:y pairs separated by ';'. An optional header row is skipped and
// malformed rows are logged and dropped.
func ReadCSV(r io.Reader, log zerolog.Logger) ([]internal.Prompt, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse prompts csv: %w", err)
	}

	var prompts []internal.Prompt
	for i, record := range records {
		if i == 0 && len(record) > 0 && record[0] == "id" {
			continue
		}
		if len(record) < 4 {
			log.Warn().Strs("record", record).Msg("skipping prompt with missing fields")
			continue
		}
		outline, err := parseOutline(record[3])
		if err != nil {
			log.Warn().Err(err).Str("id", record[0]).Msg("skipping prompt with bad outline")
			continue
		}
		prompts = append(prompts, internal.Prompt{
			ID:         strings.TrimSpace(record[0]),
			Name:       strings.TrimSpace(record[1]),
			Difficulty: strings.TrimSpace(record[2]),
			Outline:    outline,
		})
	}
	return prompts, nil
}

func parseOutline(s string) ([]internal.Point, error) {
	var points []internal.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xs, ys, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("point %q: want x:y", pair)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		points = append(points, internal.Point{X: x, Y: y})
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("outline needs at least two points, got %d", len(points))
	}
	return points, nil
}
