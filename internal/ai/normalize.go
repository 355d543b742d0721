package ai

import (
	"strings"

	"ankigen/internal/models"
)

// NormalizeCard converts one raw, untyped card object from a model response
// into the Basic/Cloze union. It is total: anything that fits neither shape
// is rejected with ok=false rather than guessed at. Key aliases cover the
// spellings models actually produce.
func NormalizeCard(raw map[string]any) (models.Card, bool) {
	text := firstString(raw, "text", "Text", "cloze")
	front := firstString(raw, "front", "Front", "question", "q")
	back := firstString(raw, "back", "Back", "answer", "a")
	kind := strings.ToLower(firstString(raw, "kind", "model", "modelKind", "type"))

	card := models.Card{
		Tags:        stringSlice(raw["tags"]),
		SlideTopic:  firstString(raw, "slideTopic", "slide_topic", "topic"),
		SlideNumber: intValue(raw, "slideNumber", "slide_number", "slide", "page"),
		Rationale:   firstString(raw, "rationale", "why"),
	}

	switch {
	case kind == "cloze" || (kind == "" && text != "" && front == ""):
		if text == "" {
			return models.Card{}, false
		}
		card.Kind = models.KindCloze
		card.Text = text
	case front != "" && back != "":
		card.Kind = models.KindBasic
		card.Front = front
		card.Back = back
	default:
		return models.Card{}, false
	}
	return card, true
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func intValue(raw map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
