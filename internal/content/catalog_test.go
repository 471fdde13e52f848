package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/scythe504/sketchrooms-backend/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := strings.Join([]string{
		"id,name,difficulty,outline",
		"sq,Square,easy,0:0;10:0;10:10",
		"# comment lines are ignored",
		"short,Missing",
		"bad,Bad,easy,1:2;nope",
		"one,One point,easy,1:1",
	}, "\n")

	prompts, err := ReadCSV(strings.NewReader(in), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "sq", prompts[0].ID)
	assert.Equal(t, "Square", prompts[0].Name)
	assert.Equal(t, []internal.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, prompts[0].Outline)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog(zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, internal.MaxTotalRounds)

	for _, p := range c.All() {
		for _, pt := range p.Outline {
			assert.True(t, pt.X >= 0 && pt.X <= internal.CanvasWidth, p.ID)
			assert.True(t, pt.Y >= 0 && pt.Y <= internal.CanvasHeight, p.ID)
		}
	}
}

func TestMemoryCatalogSample(t *testing.T) {
	c := NewMemoryCatalog([]internal.Prompt{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "a"}})
	ctx := context.Background()

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := c.SampleIDs(ctx, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	_, err = c.SampleIDs(ctx, 4)
	assert.ErrorIs(t, err, internal.ErrInvalidSettings)

	_, err = c.Get(ctx, "zzz")
	assert.ErrorIs(t, err, internal.ErrPromptNotFound)
}

type mockSequence struct {
	mock.Mock
}

func (m *mockSequence) PromptID(ctx context.Context, roomID string, round int) (string, bool, error) {
	args := m.Called(ctx, roomID, round)
	return args.String(0), args.Bool(1), args.Error(2)
}

func TestRoomPrompts(t *testing.T) {
	seq := new(mockSequence)
	seq.On("PromptID", mock.Anything, "r1", 1).Return("b", true, nil)
	seq.On("PromptID", mock.Anything, "r1", 2).Return("", false, nil)
	rp := RoomPrompts{
		Catalog:  NewMemoryCatalog([]internal.Prompt{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}),
		Sequence: seq,
	}
	ctx := context.Background()

	p, err := rp.PromptForRound(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, "B", p.Name)

	_, err = rp.PromptForRound(ctx, "r1", 2)
	assert.ErrorIs(t, err, internal.ErrPromptNotFound)

	seq.AssertExpectations(t)
}

func TestOpenInMemory(t *testing.T) {
	ctx := context.Background()

	c, closeFn, err := Open(ctx, "", "", zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	path := filepath.Join(t.TempDir(), "prompts.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name,difficulty,outline\nl,Line,easy,0:0;50:50\n"), 0o600))
	c, _, err = Open(ctx, "", path, zerolog.Nop())
	require.NoError(t, err)
	p, err := c.Get(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, "Line", p.Name)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("id,name,difficulty,outline\n"), 0o600))
	_, _, err = Open(ctx, "", empty, zerolog.Nop())
	assert.Error(t, err)

	_, _, err = Open(ctx, "", filepath.Join(t.TempDir(), "missing.csv"), zerolog.Nop())
	assert.Error(t, err)
}
