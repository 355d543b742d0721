package generate

import (
	"context"
	"fmt"
	"sort"

	"ankigen/internal/events"
	"ankigen/internal/models"
)

const (
	maxAvoidFronts = 30

	reflectMinCards  = 15
	reflectMoreCards = 60
)

// Generator is the model-facing collaborator the loops drive. A call either
// returns a round result or fails; retry and timeout policy live behind this
// interface, not in the loop.
type Generator interface {
	GenerateMoreCards(ctx context.Context, req GenerateRequest) (*RoundResult, error)
	Reflect(ctx context.Context, req ReflectRequest) (*RoundResult, error)
}

// GenerateRequest carries one round's worth of steering context.
type GenerateRequest struct {
	Limit         int
	Examples      []models.Card
	AvoidFronts   []string
	CoveredSlides []int
	PacingHint    string
	Focus         string
}

// ReflectRequest asks the model to critique and extend the existing set.
type ReflectRequest struct {
	Limit         int
	AllFronts     []string
	CoveredSlides []int
}

// RoundResult is the explicit outcome of one model call. Malformed counts
// entries that fit neither card shape, so exhaustion logic never depends on
// catching parse errors.
type RoundResult struct {
	Cards      []models.Card
	Done       bool
	Reflection string
	Malformed  int
}

// Outcome names the terminal state a loop stopped in.
type Outcome string

const (
	// OutcomeDone covers both the cap being satisfied and the model running
	// out of new material; either way the accumulated cards stand.
	OutcomeDone Outcome = "done"
	// OutcomeStopped means the cancellation predicate fired. The whole run
	// aborts, downstream phases included.
	OutcomeStopped Outcome = "stopped"
	// OutcomeError means a model call failed. Accumulated cards are retained.
	OutcomeError Outcome = "error"
)

// Config is immutable for the duration of one loop invocation.
type Config struct {
	Cap           int
	BatchSize     int
	Focus         string
	TargetDensity float64
	TotalPages    int

	// FreshRun controls whether few-shot examples are passed on round one.
	// A resumed session already has them in its conversation history.
	FreshRun bool
	Examples []models.Card

	// AcceptUnkeyed admits cards with no usable primary text. Such cards
	// bypass deduplication entirely. Off by default: content-less cards are
	// silently dropped.
	AcceptUnkeyed bool

	Cancelled  func() bool
	Checkpoint func(cards []models.Card)
}

// Run owns one session's mutable card list and seen-fingerprint set. Both
// loops mutate it in place; nothing else touches it while a loop is active.
type Run struct {
	Cards []models.Card
	seen  map[string]bool
}

// NewRun seeds a run, rebuilding the seen-set from any cards restored from a
// checkpoint so a resumed round cannot re-accept them.
func NewRun(existing []models.Card) *Run {
	r := &Run{
		Cards: append([]models.Card(nil), existing...),
		seen:  make(map[string]bool, len(existing)),
	}
	for _, c := range existing {
		if key := Fingerprint(c); key != "" {
			r.seen[key] = true
		}
	}
	return r
}

// Seen reports whether a fingerprint has already been accepted.
func (r *Run) Seen(key string) bool {
	return r.seen[key]
}

// accept folds a round's cards into the run, dropping duplicates, and emits
// a card event per acceptance. It never grows the list past max.
func (r *Run) accept(cards []models.Card, max int, acceptUnkeyed bool, es *events.Stream) int {
	added := 0
	for _, c := range cards {
		if len(r.Cards) >= max {
			break
		}
		key := Fingerprint(c)
		if key == "" {
			if !acceptUnkeyed {
				continue
			}
		} else {
			if r.seen[key] {
				continue
			}
			r.seen[key] = true
		}
		r.Cards = append(r.Cards, c)
		added++
		es.Card(c)
	}
	return added
}

// recentFronts returns the fingerprints of the most recently accepted cards,
// newest last, as anti-repetition context for the next prompt.
func (r *Run) recentFronts(n int) []string {
	fronts := make([]string, 0, n)
	start := len(r.Cards) - n
	if start < 0 {
		start = 0
	}
	for _, c := range r.Cards[start:] {
		if key := Fingerprint(c); key != "" {
			fronts = append(fronts, key)
		}
	}
	return fronts
}

// allFronts returns every accepted fingerprint in acceptance order.
func (r *Run) allFronts() []string {
	return r.recentFronts(len(r.Cards))
}

// coveredSlides returns the sorted distinct slide numbers seen so far.
func (r *Run) coveredSlides() []int {
	distinct := make(map[int]bool)
	for _, c := range r.Cards {
		if c.SlideNumber > 0 {
			distinct[c.SlideNumber] = true
		}
	}
	slides := make([]int, 0, len(distinct))
	for n := range distinct {
		slides = append(slides, n)
	}
	sort.Ints(slides)
	return slides
}

func (r *Run) checkpoint(cfg Config) {
	if cfg.Checkpoint != nil {
		cfg.Checkpoint(r.Cards)
	}
}

func cancelled(cfg Config) bool {
	return cfg.Cancelled != nil && cfg.Cancelled()
}

// Generate drives "ask for up to N more cards" rounds until the cap is
// reached, the model is exhausted, the user cancels, or a call fails.
// A failed model call surfaces as a warning event, not an error event:
// error events are reserved for run-fatal conditions and terminate the
// stream, while a failed loop still hands its accumulated cards to the
// export phase. The OutcomeError return tells the caller what happened.
func Generate(ctx context.Context, gen Generator, run *Run, cfg Config, es *events.Stream) Outcome {
	es.ProgressStart("Generating cards", cfg.Cap)
	for round := 0; ; round++ {
		remaining := cfg.Cap - len(run.Cards)
		if remaining <= 0 {
			return OutcomeDone
		}
		if cancelled(cfg) {
			es.Cancelled()
			return OutcomeStopped
		}

		req := GenerateRequest{
			Limit:         min(cfg.BatchSize, remaining),
			AvoidFronts:   run.recentFronts(maxAvoidFronts),
			CoveredSlides: run.coveredSlides(),
			PacingHint:    PacingHint(len(run.Cards), run.coveredSlides(), cfg.TotalPages, cfg.TargetDensity),
			Focus:         cfg.Focus,
		}
		if round == 0 && cfg.FreshRun {
			req.Examples = cfg.Examples
		}

		res, err := gen.GenerateMoreCards(ctx, req)
		if err != nil {
			es.Warning(fmt.Sprintf("card generation stopped: %v", err))
			return OutcomeError
		}
		if res.Malformed > 0 {
			es.Info(fmt.Sprintf("skipped %d malformed cards", res.Malformed))
		}

		added := run.accept(res.Cards, cfg.Cap, cfg.AcceptUnkeyed, es)
		es.ProgressUpdate(len(run.Cards))

		// Zero accepted cards is the exhaustion signal, whether the model
		// said done or just repeated itself.
		if added == 0 {
			return OutcomeDone
		}
		run.checkpoint(cfg)
	}
}

// Reflect runs a bounded number of critique-and-extend rounds against a soft
// cap that allows modest overshoot. Unlike Generate it never batches until
// exhaustion: the round budget is fixed up front from the card count.
func Reflect(ctx context.Context, gen Generator, run *Run, cfg Config, es *events.Stream) Outcome {
	rounds := reflectionRounds(len(run.Cards))
	if rounds == 0 {
		return OutcomeDone
	}
	softCap := SoftCap(cfg.Cap)
	es.ProgressStart("Refining cards", softCap)

	for round := 0; round < rounds; round++ {
		if len(run.Cards) >= softCap {
			return OutcomeDone
		}
		if cancelled(cfg) {
			es.Cancelled()
			return OutcomeStopped
		}

		req := ReflectRequest{
			Limit:         min(cfg.BatchSize, softCap-len(run.Cards)),
			AllFronts:     run.allFronts(),
			CoveredSlides: run.coveredSlides(),
		}
		res, err := gen.Reflect(ctx, req)
		if err != nil {
			es.Warning(fmt.Sprintf("reflection stopped: %v", err))
			return OutcomeError
		}
		if res.Reflection != "" {
			es.Info(res.Reflection)
		}

		added := run.accept(res.Cards, softCap, cfg.AcceptUnkeyed, es)
		es.ProgressUpdate(len(run.Cards))
		if added == 0 {
			return OutcomeDone
		}
		run.checkpoint(cfg)
	}
	return OutcomeDone
}

// SoftCap is the reflection budget: floor(cap*1.2)+5.
func SoftCap(cap int) int {
	return cap*6/5 + 5
}

func reflectionRounds(cardCount int) int {
	switch {
	case cardCount < reflectMinCards:
		return 0
	case cardCount < reflectMoreCards:
		return 1
	default:
		return 2
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
