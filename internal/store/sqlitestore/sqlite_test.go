package sqlitestore

import (
	"context"
	"testing"
	"time"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setup(t *testing.T) *Persistence {
	t.Helper()
	p, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func sample() *models.Envelope {
	return &models.Envelope{
		ID:         "n1",
		Type:       models.TypeNote,
		SpaceID:    "space1",
		KeyID:      2,
		Version:    7,
		Nonce:      []byte{1, 2, 3},
		Ciphertext: []byte{4, 5, 6},
		MAC:        []byte{7, 8, 9},
		Dirty:      true,
		ModifiedAt: time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC),
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	p := setup(t)
	ctx := context.Background()

	env := sample()
	require.NoError(t, p.Put(ctx, env))

	got, err := p.Get(ctx, models.TypeNote, "n1")
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestPut_Upserts(t *testing.T) {
	p := setup(t)
	ctx := context.Background()

	env := sample()
	require.NoError(t, p.Put(ctx, env))

	env.Version = 8
	env.Ciphertext = []byte{9}
	env.Dirty = false
	require.NoError(t, p.Put(ctx, env))

	got, err := p.Get(ctx, models.TypeNote, "n1")
	require.NoError(t, err)
	assert.EqualValues(t, 8, got.Version)
	assert.Equal(t, []byte{9}, got.Ciphertext)
	assert.False(t, got.Dirty)
}

func TestGet_Missing(t *testing.T) {
	p := setup(t)
	_, err := p.Get(context.Background(), models.TypeNote, "ghost")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete(t *testing.T) {
	p := setup(t)
	ctx := context.Background()

	require.NoError(t, p.Put(ctx, sample()))
	require.NoError(t, p.Delete(ctx, models.TypeNote, "n1"))
	_, err := p.Get(ctx, models.TypeNote, "n1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Deleting an absent record is not an error.
	require.NoError(t, p.Delete(ctx, models.TypeNote, "ghost"))
}

func TestDeleteAll(t *testing.T) {
	p := setup(t)
	ctx := context.Background()

	note := sample()
	require.NoError(t, p.Put(ctx, note))
	board := sample()
	board.ID = "b1"
	board.Type = models.TypeBoard
	require.NoError(t, p.Put(ctx, board))

	require.NoError(t, p.DeleteAll(ctx))

	notes, err := p.ListAll(ctx, models.TypeNote)
	require.NoError(t, err)
	assert.Empty(t, notes)
	boards, err := p.ListAll(ctx, models.TypeBoard)
	require.NoError(t, err)
	assert.Empty(t, boards)
}

func TestListAll_FiltersByType(t *testing.T) {
	p := setup(t)
	ctx := context.Background()

	note := sample()
	require.NoError(t, p.Put(ctx, note))

	board := sample()
	board.ID = "b1"
	board.Type = models.TypeBoard
	require.NoError(t, p.Put(ctx, board))

	notes, err := p.ListAll(ctx, models.TypeNote)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)

	boards, err := p.ListAll(ctx, models.TypeBoard)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "b1", boards[0].ID)
}
