package generate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankigen/internal/events"
	"ankigen/internal/models"
)

type fakeGenerator struct {
	generate func(req GenerateRequest) (*RoundResult, error)
	reflect  func(req ReflectRequest) (*RoundResult, error)
}

func (f *fakeGenerator) GenerateMoreCards(_ context.Context, req GenerateRequest) (*RoundResult, error) {
	return f.generate(req)
}

func (f *fakeGenerator) Reflect(_ context.Context, req ReflectRequest) (*RoundResult, error) {
	return f.reflect(req)
}

func makeCards(start, n int) []models.Card {
	cards := make([]models.Card, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, models.Card{
			Kind:        models.KindBasic,
			Front:       fmt.Sprintf("question %d", start+i),
			Back:        "answer",
			SlideNumber: start + i,
		})
	}
	return cards
}

type recorder struct {
	evs []events.Event
}

func (r *recorder) stream() *events.Stream {
	return events.NewStream(func(ev events.Event) { r.evs = append(r.evs, ev) })
}

func (r *recorder) count(t events.Type) int {
	n := 0
	for _, ev := range r.evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func TestGenerate_CapRespected(t *testing.T) {
	next := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			cards := makeCards(next, req.Limit)
			next += req.Limit
			return &RoundResult{Cards: cards}, nil
		},
	}

	run := NewRun(nil)
	rec := &recorder{}
	outcome := Generate(context.Background(), gen, run, Config{Cap: 25, BatchSize: 10}, rec.stream())

	assert.Equal(t, OutcomeDone, outcome)
	assert.Len(t, run.Cards, 25)
	assert.Equal(t, 25, rec.count(events.TypeCard))
}

func TestGenerate_Deduplicates(t *testing.T) {
	round := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			round++
			if round == 1 {
				return &RoundResult{Cards: makeCards(0, 5)}, nil
			}
			// Same cards again: nothing new to accept.
			return &RoundResult{Cards: makeCards(0, 5)}, nil
		},
	}

	run := NewRun(nil)
	outcome := Generate(context.Background(), gen, run, Config{Cap: 50, BatchSize: 10}, nil)

	assert.Equal(t, OutcomeDone, outcome)
	assert.Len(t, run.Cards, 5)
	assert.Equal(t, 2, round)
}

func TestGenerate_ExhaustionStops(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			return &RoundResult{Done: true}, nil
		},
	}

	run := NewRun(nil)
	outcome := Generate(context.Background(), gen, run, Config{Cap: 50, BatchSize: 10}, nil)

	assert.Equal(t, OutcomeDone, outcome)
	assert.Empty(t, run.Cards)
}

func TestGenerate_CancelAfterFirstRound(t *testing.T) {
	cancelled := false
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			cards := makeCards(0, 10)
			cancelled = true
			return &RoundResult{Cards: cards}, nil
		},
	}

	run := NewRun(nil)
	rec := &recorder{}
	cfg := Config{
		Cap:       50,
		BatchSize: 10,
		Cancelled: func() bool { return cancelled },
	}
	outcome := Generate(context.Background(), gen, run, cfg, rec.stream())

	assert.Equal(t, OutcomeStopped, outcome)
	assert.Len(t, run.Cards, 10)
	assert.Equal(t, 1, rec.count(events.TypeCancelled))
	assert.Equal(t, 10, rec.count(events.TypeCard))
}

func TestGenerate_ModelErrorEmitsWarning(t *testing.T) {
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			return nil, errors.New("boom")
		},
	}

	run := NewRun(nil)
	rec := &recorder{}
	outcome := Generate(context.Background(), gen, run, Config{Cap: 50, BatchSize: 10}, rec.stream())

	assert.Equal(t, OutcomeError, outcome)
	assert.Equal(t, 1, rec.count(events.TypeWarning))
	assert.Equal(t, 0, rec.count(events.TypeError))
}

func TestGenerate_ResumeRebuildsSeenSet(t *testing.T) {
	seeded := makeCards(0, 7)
	round := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			round++
			if round == 1 {
				// Mix of already-seen and fresh cards.
				return &RoundResult{Cards: append(makeCards(0, 3), makeCards(100, 2)...)}, nil
			}
			return &RoundResult{}, nil
		},
	}

	run := NewRun(seeded)
	outcome := Generate(context.Background(), gen, run, Config{Cap: 50, BatchSize: 10}, nil)

	assert.Equal(t, OutcomeDone, outcome)
	assert.Len(t, run.Cards, 9) // 7 restored + 2 fresh
}

func TestGenerate_ExamplesOnlyOnFirstFreshRound(t *testing.T) {
	var sawExamples []bool
	next := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			sawExamples = append(sawExamples, len(req.Examples) > 0)
			cards := makeCards(next, req.Limit)
			next += req.Limit
			return &RoundResult{Cards: cards}, nil
		},
	}

	cfg := Config{
		Cap:       20,
		BatchSize: 10,
		FreshRun:  true,
		Examples:  makeCards(500, 2),
	}
	Generate(context.Background(), gen, NewRun(nil), cfg, nil)

	require.Len(t, sawExamples, 2)
	assert.True(t, sawExamples[0])
	assert.False(t, sawExamples[1])
}

func TestGenerate_ResumedRunSuppressesExamples(t *testing.T) {
	var sawExamples bool
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			sawExamples = len(req.Examples) > 0
			return &RoundResult{}, nil
		},
	}

	cfg := Config{Cap: 20, BatchSize: 10, FreshRun: false, Examples: makeCards(500, 2)}
	Generate(context.Background(), gen, NewRun(nil), cfg, nil)

	assert.False(t, sawExamples)
}

func TestGenerate_CheckpointEachProductiveRound(t *testing.T) {
	next := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			cards := makeCards(next, req.Limit)
			next += req.Limit
			return &RoundResult{Cards: cards}, nil
		},
	}

	var checkpoints []int
	cfg := Config{
		Cap:        30,
		BatchSize:  10,
		Checkpoint: func(cards []models.Card) { checkpoints = append(checkpoints, len(cards)) },
	}
	Generate(context.Background(), gen, NewRun(nil), cfg, nil)

	assert.Equal(t, []int{10, 20, 30}, checkpoints)
}

func TestGenerate_DropsUnkeyedByDefault(t *testing.T) {
	round := 0
	gen := &fakeGenerator{
		generate: func(req GenerateRequest) (*RoundResult, error) {
			round++
			if round == 1 {
				return &RoundResult{Cards: []models.Card{{Kind: models.KindBasic, Front: "  "}}}, nil
			}
			return &RoundResult{}, nil
		},
	}

	run := NewRun(nil)
	Generate(context.Background(), gen, run, Config{Cap: 10, BatchSize: 5}, nil)
	assert.Empty(t, run.Cards)
}

func TestReflect_RoundBudget(t *testing.T) {
	cases := []struct {
		name   string
		cards  int
		rounds int
	}{
		{"BelowMinimumSkips", 14, 0},
		{"MidRangeOneRound", 15, 1},
		{"LargeSetTwoRounds", 60, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			next := 1000
			gen := &fakeGenerator{
				reflect: func(req ReflectRequest) (*RoundResult, error) {
					calls++
					cards := makeCards(next, 1)
					next++
					return &RoundResult{Cards: cards}, nil
				},
			}

			run := NewRun(makeCards(0, tc.cards))
			outcome := Reflect(context.Background(), gen, run, Config{Cap: 300, BatchSize: 10}, nil)

			assert.Equal(t, OutcomeDone, outcome)
			assert.Equal(t, tc.rounds, calls)
		})
	}
}

func TestReflect_SoftCap(t *testing.T) {
	assert.Equal(t, 65, SoftCap(50))
	assert.Equal(t, 17, SoftCap(10))

	// Already past the soft cap: no model calls at all.
	calls := 0
	gen := &fakeGenerator{
		reflect: func(req ReflectRequest) (*RoundResult, error) {
			calls++
			return &RoundResult{}, nil
		},
	}
	run := NewRun(makeCards(0, 17))
	Reflect(context.Background(), gen, run, Config{Cap: 10, BatchSize: 10}, nil)
	assert.Equal(t, 0, calls)
}

func TestReflect_ReflectionTextSurfacesAsInfo(t *testing.T) {
	gen := &fakeGenerator{
		reflect: func(req ReflectRequest) (*RoundResult, error) {
			return &RoundResult{Reflection: "coverage looks thin on chapter 3", Cards: makeCards(900, 1)}, nil
		},
	}

	rec := &recorder{}
	run := NewRun(makeCards(0, 20))
	Reflect(context.Background(), gen, run, Config{Cap: 100, BatchSize: 10}, rec.stream())

	assert.GreaterOrEqual(t, rec.count(events.TypeInfo), 1)
}
