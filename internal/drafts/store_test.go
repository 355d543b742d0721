package drafts

import (
	"context"
	"path/filepath"
	"testing"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankigen/internal/db"
	"ankigen/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStore(conn)
}

func TestStore_SaveAllAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cards := []models.Card{
		{Kind: models.KindBasic, Front: "Q1", Back: "A1", Tags: []string{"bio"}, SlideNumber: 3},
		{Kind: models.KindCloze, Text: "X is {{c1::Y}}"},
	}
	saved, err := s.SaveAll(ctx, "run-1", cards)
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	list, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Q1", list[0].Card.Front)
	assert.Equal(t, []string{"bio"}, list[0].Card.Tags)
	assert.Equal(t, models.KindCloze, list[1].Card.Kind)
	assert.Equal(t, int(fsrs.New), list[0].State)
	assert.Equal(t, 0, list[0].Reps)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAll(ctx, "run-1", []models.Card{{Kind: models.KindBasic, Front: "Q", Back: "A"}})
	require.NoError(t, err)
	list, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	id := list[0].ID

	require.NoError(t, s.Update(ctx, id, models.Card{Kind: models.KindBasic, Front: "Q edited", Back: "A"}))
	draft, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Q edited", draft.Card.Front)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, id, models.Card{}), ErrNotFound)
}

func TestStore_ReviewChainsSchedulingState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAll(ctx, "run-1", []models.Card{{Kind: models.KindBasic, Front: "Q", Back: "A"}})
	require.NoError(t, err)
	list, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	id := list[0].ID

	first, err := s.Review(ctx, id, fsrs.Good)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Reps)
	assert.Greater(t, first.Difficulty, 0.0)
	assert.False(t, first.LastReview.IsZero())

	// The second review must start from the persisted state, not from a
	// freshly-initialized card.
	second, err := s.Review(ctx, id, fsrs.Good)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Reps)
	assert.Greater(t, second.Difficulty, 0.0)
	assert.True(t, second.Due.After(first.Due))

	stored, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Reps)
	assert.Equal(t, second.Difficulty, stored.Difficulty)
	assert.Equal(t, second.Stability, stored.Stability)
	assert.Equal(t, second.State, stored.State)
	assert.False(t, stored.LastReview.IsZero())
}

func TestStore_ReviewUnknownDraft(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Review(context.Background(), 999, fsrs.Good)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteByRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAll(ctx, "run-1", []models.Card{{Kind: models.KindBasic, Front: "Q", Back: "A"}})
	require.NoError(t, err)
	_, err = s.SaveAll(ctx, "run-2", []models.Card{{Kind: models.KindBasic, Front: "Q2", Back: "A2"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByRun(ctx, "run-1"))
	list, err := s.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListByRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
