package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ankigen/internal/generate"
	"ankigen/internal/models"
)

const (
	// maxDocumentChars bounds how much extracted lecture text is placed into
	// the opening turn of a conversation.
	maxDocumentChars = 120000
)

// Message is one serializable conversation turn. Sessions persist their
// history through checkpoints in this form and can be rebuilt from it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a stateful conversation with the model about one source
// document. It implements generate.Generator: every generation or reflection
// round extends the same conversation, and the history is compacted once it
// grows past a bound.
type Session struct {
	client  *Client
	history []Message
}

const systemPrompt = `You are an expert educator who designs spaced repetition flashcards from lecture material. Cards must be atomic, unambiguous, and use active recall. Use Markdown sparingly in answers (only for essential formatting). Always respond with the exact JSON shape requested, and nothing else.`

// NewSession opens a fresh conversation seeded with the system prompt and
// the extracted document text.
func NewSession(client *Client, doc *models.SourceDocument) *Session {
	var b strings.Builder
	fmt.Fprintf(&b, "Lecture document %q, %d pages.\n\n", doc.Name, doc.PageCount)
	for _, page := range doc.Pages {
		fmt.Fprintf(&b, "=== Page %d ===\n%s\n", page.Number, page.Text)
		if b.Len() > maxDocumentChars {
			b.WriteString("\n(remaining pages truncated)\n")
			break
		}
	}
	return &Session{
		client: client,
		history: []Message{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	}
}

// Restore rebuilds a session from checkpointed history.
func Restore(client *Client, history []Message) *Session {
	return &Session{
		client:  client,
		history: append([]Message(nil), history...),
	}
}

// History returns a copy of the conversation suitable for checkpointing.
func (s *Session) History() []Message {
	return append([]Message(nil), s.history...)
}

// converse sends the accumulated history plus one user turn, records both
// the turn and the reply, and returns the reply content.
func (s *Session) converse(ctx context.Context, userMsg string, temperature float32) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(s.history)+1)
	for _, m := range s.history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMsg,
	})

	content, err := s.client.complete(ctx, messages, temperature)
	if err != nil {
		return "", err
	}

	s.history = append(s.history,
		Message{Role: openai.ChatMessageRoleUser, Content: userMsg},
		Message{Role: openai.ChatMessageRoleAssistant, Content: content},
	)
	return content, nil
}

type rawRound struct {
	Cards      []map[string]any `json:"cards"`
	Done       bool             `json:"done"`
	Reflection string           `json:"reflection"`
}

func parseRound(content string) (*generate.RoundResult, error) {
	var raw rawRound
	jsonStr := extractJSON(content)
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal card round json: %w", err)
	}

	result := &generate.RoundResult{
		Done:       raw.Done,
		Reflection: strings.TrimSpace(raw.Reflection),
	}
	for _, entry := range raw.Cards {
		card, ok := NormalizeCard(entry)
		if !ok {
			result.Malformed++
			continue
		}
		result.Cards = append(result.Cards, card)
	}
	return result, nil
}

const cardSchema = `{"cards":[{"kind":"basic","front":"","back":"","slideNumber":0,"slideTopic":"","rationale":"","tags":[]} or {"kind":"cloze","text":"","slideNumber":0,"slideTopic":"","rationale":"","tags":[]}],"done":false}`

// GenerateMoreCards asks the model for up to req.Limit additional cards.
func (s *Session) GenerateMoreCards(ctx context.Context, req generate.GenerateRequest) (*generate.RoundResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Create up to %d new flashcards from the lecture material.\n", req.Limit)
	fmt.Fprintf(&b, "Respond with JSON %s. Set done to true only when the material holds nothing more worth carding.\n", cardSchema)

	if req.Focus != "" {
		fmt.Fprintf(&b, "\nFocus: %s\n", sanitizeForPrompt(req.Focus, 300))
	}
	if len(req.Examples) > 0 {
		b.WriteString("\nMatch the style of these existing cards from the target deck:\n")
		for _, ex := range req.Examples {
			writeCardLine(&b, ex)
		}
	}
	if len(req.AvoidFronts) > 0 {
		b.WriteString("\nDo not repeat cards covering these (most recent first is last):\n")
		for _, front := range req.AvoidFronts {
			b.WriteString("- " + sanitizeForPrompt(front, maxSummaryFrontLen) + "\n")
		}
	}
	if len(req.CoveredSlides) > 0 {
		fmt.Fprintf(&b, "\nSlides already covered: %s\n", joinInts(req.CoveredSlides))
	}
	if req.PacingHint != "" {
		b.WriteString("\n" + req.PacingHint + "\n")
	}

	content, err := s.converse(ctx, b.String(), 0.4)
	if err != nil {
		return nil, err
	}
	return parseRound(content)
}

// Reflect asks the model to critique the full card set and fill gaps.
func (s *Session) Reflect(ctx context.Context, req generate.ReflectRequest) (*generate.RoundResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the flashcards created so far and improve the set: look for missing fundamentals, imbalanced coverage, or questions that test recognition instead of recall. Add up to %d cards that close the gaps.\n", req.Limit)
	fmt.Fprintf(&b, "Respond with JSON %s plus a short \"reflection\" field summarizing your critique.\n", cardSchema)

	b.WriteString("\nCards so far:\n")
	for _, front := range req.AllFronts {
		b.WriteString("- " + sanitizeForPrompt(front, maxSummaryFrontLen) + "\n")
	}
	if len(req.CoveredSlides) > 0 {
		fmt.Fprintf(&b, "\nSlides covered: %s\n", joinInts(req.CoveredSlides))
	}

	content, err := s.converse(ctx, b.String(), 0.5)
	if err != nil {
		return nil, err
	}
	return parseRound(content)
}

func writeCardLine(b *strings.Builder, c models.Card) {
	if c.Kind == models.KindCloze {
		b.WriteString("- Cloze: " + sanitizeForPrompt(c.Text, 200) + "\n")
		return
	}
	fmt.Fprintf(b, "- Q: %s | A: %s\n", sanitizeForPrompt(c.Front, 200), sanitizeForPrompt(c.Back, 200))
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
