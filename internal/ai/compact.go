package ai

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ankigen/internal/models"
)

const (
	// historyMaxTurns is the length past which a conversation is compacted.
	historyMaxTurns  = 20
	historyHeadTurns = 2
	historyTailTurns = 6

	maxSummaryCards    = 200
	maxSummaryFrontLen = 120
)

// CompactHistory replaces the middle of an overlong conversation with one
// synthetic rolling-summary turn built from the accepted cards. This is a
// lossy compaction: everything strictly between the head and tail turns is
// discarded, bounding token cost while keeping recent context and a digest
// of content already covered.
func (s *Session) CompactHistory(cards []models.Card) {
	s.history = compactHistory(s.history, cards)
}

func compactHistory(history []Message, cards []models.Card) []Message {
	if len(history) <= historyMaxTurns {
		return history
	}
	if len(history) <= historyHeadTurns+historyTailTurns+1 {
		return history
	}

	out := make([]Message, 0, historyHeadTurns+1+historyTailTurns)
	out = append(out, history[:historyHeadTurns]...)
	out = append(out, Message{
		Role:    openai.ChatMessageRoleSystem,
		Content: rollingSummary(cards),
	})
	out = append(out, history[len(history)-historyTailTurns:]...)
	return out
}

func rollingSummary(cards []models.Card) string {
	var b strings.Builder
	b.WriteString("Rolling summary of the conversation so far. Flashcards already created (do not duplicate):\n")

	recent := cards
	if len(recent) > maxSummaryCards {
		fmt.Fprintf(&b, "(%d earlier cards omitted)\n", len(recent)-maxSummaryCards)
		recent = recent[len(recent)-maxSummaryCards:]
	}
	for _, c := range recent {
		front := sanitizeForPrompt(c.PrimaryText(), maxSummaryFrontLen)
		if front == "" {
			continue
		}
		b.WriteString("- " + front + "\n")
	}
	return b.String()
}
