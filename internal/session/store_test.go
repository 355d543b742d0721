package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankigen/internal/ai"
	"ankigen/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		PDFPath:      "/uploads/lecture-03.pdf",
		Deck:         "Bio 101",
		SlideSetName: "Lecture 03",
		Model:        "gpt-4o-mini",
		Tags:         []string{"bio", "week3"},
		Cards: []models.Card{
			{Kind: models.KindBasic, Front: "What is ATP?", Back: "Energy carrier", SlideNumber: 4},
			{Kind: models.KindCloze, Text: "The {{c1::ribosome}} builds proteins", SlideNumber: 7},
		},
		History: []ai.Message{
			{Role: "system", Content: "prompt"},
			{Role: "user", Content: "generate cards"},
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	snap := sampleSnapshot()
	require.NoError(t, store.Save("abc123", snap))

	loaded := store.Load("abc123")
	require.NotNil(t, loaded)
	assert.Equal(t, "abc123", loaded.SessionID)
	assert.Equal(t, snap.PDFPath, loaded.PDFPath)
	assert.Equal(t, snap.Cards, loaded.Cards)
	assert.Equal(t, snap.History, loaded.History)
	assert.Equal(t, snap.Tags, loaded.Tags)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)
	assert.Nil(t, store.Load("nope"))
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{\"cards\": ["), 0o644))
	assert.Nil(t, store.Load("bad"))
}

func TestStore_CrashedWriteLeavesCommittedState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save("abc", sampleSnapshot()))

	// Simulate a write that died before rename: a truncated temp file sitting
	// next to the committed snapshot.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc-crashed.tmp"), []byte("{\"pdfPath\": \"/upl"), 0o644))

	loaded := store.Load("abc")
	require.NotNil(t, loaded)
	assert.Equal(t, "/uploads/lecture-03.pdf", loaded.PDFPath)
	assert.Len(t, loaded.Cards, 2)
}

func TestStore_SaveReplacesPrevious(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("abc", sampleSnapshot()))

	updated := sampleSnapshot()
	updated.Cards = updated.Cards[:1]
	require.NoError(t, store.Save("abc", updated))

	loaded := store.Load("abc")
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Cards, 1)
}

func TestStore_ClearIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("abc", sampleSnapshot()))

	store.Clear("abc")
	assert.Nil(t, store.Load("abc"))
	store.Clear("abc") // second clear is a no-op
}

func TestStore_UpdateCards(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("abc", sampleSnapshot()))

	cards := []models.Card{{Kind: models.KindBasic, Front: "new", Back: "card"}}
	require.NoError(t, store.UpdateCards("abc", cards, func(s *Snapshot) {
		s.History = append(s.History, ai.Message{Role: "assistant", Content: "more"})
	}))

	loaded := store.Load("abc")
	require.NotNil(t, loaded)
	assert.Equal(t, cards, loaded.Cards)
	assert.Len(t, loaded.History, 3)
	// Fields outside the mutation survive.
	assert.Equal(t, "Bio 101", loaded.Deck)
}

func TestStore_UpdateCardsWithoutExisting(t *testing.T) {
	store := newTestStore(t)
	cards := []models.Card{{Kind: models.KindBasic, Front: "solo", Back: "card"}}
	require.NoError(t, store.UpdateCards("fresh", cards, nil))

	loaded := store.Load("fresh")
	require.NotNil(t, loaded)
	assert.Equal(t, cards, loaded.Cards)
}

func TestStore_IsolatedSessions(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("one", sampleSnapshot()))

	other := sampleSnapshot()
	other.Deck = "Chem 201"
	require.NoError(t, store.Save("two", other))

	store.Clear("one")
	assert.Nil(t, store.Load("one"))
	loaded := store.Load("two")
	require.NotNil(t, loaded)
	assert.Equal(t, "Chem 201", loaded.Deck)
}
