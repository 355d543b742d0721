package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ankigen/internal/ai"
	"ankigen/internal/models"
)

// Snapshot is the atomic unit of checkpoint persistence: everything needed
// to resume a run after interruption.
type Snapshot struct {
	SessionID    string             `json:"sessionId"`
	PDFPath      string             `json:"pdfPath"`
	Deck         string             `json:"deck"`
	SlideSetName string             `json:"slideSetName,omitempty"`
	Model        string             `json:"model,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	RunID        string             `json:"runId,omitempty"`
	EntryID      string             `json:"entryId,omitempty"`
	Cards        []models.Card      `json:"cards"`
	ConceptMap   *models.ConceptMap `json:"conceptMap,omitempty"`
	History      []ai.Message       `json:"history,omitempty"`
	SavedAt      time.Time          `json:"savedAt"`
}

// Store persists one JSON snapshot file per session id. Writes go to a
// temporary file in the same directory followed by an atomic rename, so a
// reader can never observe a partially written snapshot. Different session
// ids are fully independent; each session has exactly one writer at a time.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure session dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sanitizeID(sessionID)+".json")
}

// Save writes the full snapshot for a session, replacing any previous one.
func (s *Store) Save(sessionID string, snap *Snapshot) error {
	snap.SessionID = sessionID
	snap.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, sanitizeID(sessionID)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path(sessionID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot for a session, or nil when none exists or the
// file does not parse. It never fails: a missing or corrupt checkpoint just
// means the run starts fresh.
func (s *Store) Load(sessionID string) *Snapshot {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}

// Clear removes the session's snapshot if present. Idempotent.
func (s *Store) Clear(sessionID string) {
	_ = os.Remove(s.path(sessionID))
}

// UpdateCards loads the existing snapshot (or starts an empty one), replaces
// the card list, applies any extra mutation, and re-saves atomically.
func (s *Store) UpdateCards(sessionID string, cards []models.Card, mutate func(*Snapshot)) error {
	snap := s.Load(sessionID)
	if snap == nil {
		snap = &Snapshot{}
	}
	snap.Cards = cards
	if mutate != nil {
		mutate(snap)
	}
	return s.Save(sessionID, snap)
}

// sanitizeID keeps session ids filesystem-safe.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
