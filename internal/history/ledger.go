package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Entry is one catalogued run. The ledger is a UI convenience index, not the
// source of truth for resumability: after a crash it can disagree with the
// session store, and the session snapshot wins.
type Entry struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Deck      string    `json:"deck"`
	Status    string    `json:"status"`
	CardCount int       `json:"cardCount"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ledger keeps all entries in a single JSON document, rewritten wholesale on
// every mutation. Newest entries come first.
type Ledger struct {
	mu   sync.Mutex
	path string
}

func NewLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}
	return &Ledger{path: path}, nil
}

// AddEntry prepends a new entry and returns its id.
func (l *Ledger) AddEntry(filename, deck, status, sessionID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	entry := Entry{
		ID:        uuid.NewString(),
		Filename:  filename,
		Deck:      deck,
		Status:    status,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	entries = append([]Entry{entry}, entries...)
	if err := l.save(entries); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// UpdateEntry mutates an entry in place. An empty status or a negative card
// count leaves the respective field unchanged. Unknown ids are a no-op.
func (l *Ledger) UpdateEntry(id, status string, cardCount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if status != "" {
			entries[i].Status = status
		}
		if cardCount >= 0 {
			entries[i].CardCount = cardCount
		}
		entries[i].UpdatedAt = time.Now().UTC()
		return l.save(entries)
	}
	return nil
}

// Entries returns all entries, newest first.
func (l *Ledger) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// EntriesByStatus returns entries matching one status, newest first.
func (l *Ledger) EntriesByStatus(status string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteEntry removes one entry by id. Unknown ids are a no-op.
func (l *Ledger) DeleteEntry(id string) error {
	_, err := l.deleteMatching(func(e Entry) bool { return e.ID == id })
	return err
}

// DeleteEntries removes the given ids and returns how many were deleted.
func (l *Ledger) DeleteEntries(ids []string) (int, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return l.deleteMatching(func(e Entry) bool { return wanted[e.ID] })
}

// ClearAll removes every entry.
func (l *Ledger) ClearAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save(nil)
}

func (l *Ledger) deleteMatching(match func(Entry) bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	deleted := 0
	for _, e := range entries {
		if match(e) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	if deleted == 0 {
		return 0, nil
	}
	return deleted, l.save(kept)
}

func (l *Ledger) load() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return entries, nil
}

func (l *Ledger) save(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
