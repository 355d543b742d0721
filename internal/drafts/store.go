package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"ankigen/internal/models"
)

var (
	// ErrNotFound indicates the draft id does not exist.
	ErrNotFound = errors.New("draft not found")
)

// Draft is an accepted card parked for user review before export. Each
// draft carries FSRS scheduling state so a review UI can study straight from
// the draft table.
type Draft struct {
	ID            int64       `json:"id"`
	RunID         string      `json:"runId"`
	Card          models.Card `json:"card"`
	Due           time.Time   `json:"due"`
	Stability     float64     `json:"stability"`
	Difficulty    float64     `json:"difficulty"`
	ElapsedDays   int         `json:"elapsedDays"`
	ScheduledDays int         `json:"scheduledDays"`
	Reps          int         `json:"reps"`
	Lapses        int         `json:"lapses"`
	State         int         `json:"state"`
	LastReview    time.Time   `json:"lastReview,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (d *Draft) toFSRSCard() fsrs.Card {
	return fsrs.Card{
		Due:           d.Due,
		Stability:     d.Stability,
		Difficulty:    d.Difficulty,
		ElapsedDays:   uint64(max(d.ElapsedDays, 0)),
		ScheduledDays: uint64(max(d.ScheduledDays, 0)),
		Reps:          uint64(max(d.Reps, 0)),
		Lapses:        uint64(max(d.Lapses, 0)),
		State:         fsrs.State(max(d.State, 0)),
		LastReview:    d.LastReview,
	}
}

func (d *Draft) applyFSRSCard(f fsrs.Card) {
	d.Due = f.Due
	d.Stability = f.Stability
	d.Difficulty = f.Difficulty
	d.ElapsedDays = int(f.ElapsedDays)
	d.ScheduledDays = int(f.ScheduledDays)
	d.Reps = int(f.Reps)
	d.Lapses = int(f.Lapses)
	d.State = int(f.State)
	d.LastReview = f.LastReview
}

// Store persists drafts in SQLite.
type Store struct {
	db     *sql.DB
	params fsrs.Parameters
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, params: fsrs.DefaultParam()}
}

// SaveAll inserts one draft per card under the given run id, with fresh FSRS
// state due immediately.
func (s *Store) SaveAll(ctx context.Context, runID string, cards []models.Card) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin drafts tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	saved := 0
	for _, card := range cards {
		tags, err := json.Marshal(card.Tags)
		if err != nil {
			return saved, fmt.Errorf("marshal draft tags: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO drafts (run_id, kind, front, back, text, tags, slide_topic, slide_number, rationale,
				due, state, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			runID, string(kindOrBasic(card.Kind)), card.Front, card.Back, card.Text, string(tags),
			card.SlideTopic, card.SlideNumber, card.Rationale,
			now, int(fsrs.New), now, now,
		)
		if err != nil {
			return saved, fmt.Errorf("insert draft: %w", err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return saved, fmt.Errorf("commit drafts: %w", err)
	}
	return saved, nil
}

// ListByRun returns a run's drafts in insertion order.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, front, back, text, tags, slide_topic, slide_number, rationale,
			   due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state,
			   last_review, created_at, updated_at
		FROM drafts WHERE run_id = ? ORDER BY id ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, draft)
	}
	return out, rows.Err()
}

// Get fetches a single draft.
func (s *Store) Get(ctx context.Context, id int64) (*Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, kind, front, back, text, tags, slide_topic, slide_number, rationale,
			   due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state,
			   last_review, created_at, updated_at
		FROM drafts WHERE id = ?;`, id)
	draft, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &draft, nil
}

// Update replaces a draft's card content, keeping its scheduling state.
func (s *Store) Update(ctx context.Context, id int64, card models.Card) error {
	tags, err := json.Marshal(card.Tags)
	if err != nil {
		return fmt.Errorf("marshal draft tags: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE drafts SET kind = ?, front = ?, back = ?, text = ?, tags = ?,
			slide_topic = ?, slide_number = ?, rationale = ?, updated_at = ?
		WHERE id = ?;`,
		string(kindOrBasic(card.Kind)), card.Front, card.Back, card.Text, string(tags),
		card.SlideTopic, card.SlideNumber, card.Rationale, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a draft.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByRun drops all drafts of a run, typically after a successful export.
func (s *Store) DeleteByRun(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE run_id = ?;`, runID); err != nil {
		return fmt.Errorf("delete run drafts: %w", err)
	}
	return nil
}

// Review applies one FSRS review to a draft so users can pre-study drafts
// before exporting them.
func (s *Store) Review(ctx context.Context, id int64, rating fsrs.Rating) (*Draft, error) {
	draft, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(draft.toFSRSCard(), now)
	info, ok := scheduling[rating]
	if !ok {
		return nil, fmt.Errorf("rating %d not supported", rating)
	}
	draft.applyFSRSCard(info.Card)
	draft.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		UPDATE drafts SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?,
			scheduled_days = ?, reps = ?, lapses = ?, state = ?, last_review = ?, updated_at = ?
		WHERE id = ?;`,
		draft.Due, draft.Stability, draft.Difficulty, draft.ElapsedDays,
		draft.ScheduledDays, draft.Reps, draft.Lapses, draft.State,
		draft.LastReview, now, id)
	if err != nil {
		return nil, fmt.Errorf("update draft schedule: %w", err)
	}
	return draft, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (Draft, error) {
	var (
		draft      Draft
		kind       string
		tags       string
		due        sql.NullTime
		lastReview sql.NullTime
	)
	err := row.Scan(&draft.ID, &draft.RunID, &kind, &draft.Card.Front, &draft.Card.Back,
		&draft.Card.Text, &tags, &draft.Card.SlideTopic, &draft.Card.SlideNumber,
		&draft.Card.Rationale, &due, &draft.Stability, &draft.Difficulty,
		&draft.ElapsedDays, &draft.ScheduledDays, &draft.Reps, &draft.Lapses,
		&draft.State, &lastReview, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return Draft{}, err
	}
	draft.Card.Kind = models.Kind(kind)
	if due.Valid {
		draft.Due = due.Time
	}
	if lastReview.Valid {
		draft.LastReview = lastReview.Time
	}
	if err := json.Unmarshal([]byte(tags), &draft.Card.Tags); err != nil {
		draft.Card.Tags = nil
	}
	return draft, nil
}

func kindOrBasic(kind models.Kind) models.Kind {
	if kind == models.KindCloze {
		return models.KindCloze
	}
	return models.KindBasic
}
