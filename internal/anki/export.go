package anki

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ankigen/internal/models"
)

type note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags,omitempty"`
	Options   noteOptions       `json:"options"`
}

type noteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// Export creates one note for a card, uploading its media first. Failures
// are returned as a result, never as an error: one bad card must not abort
// the export of the rest.
func (c *Client) Export(ctx context.Context, card models.Card, deck string, fallback models.Kind, extraTags []string) models.ExportResult {
	result := models.ExportResult{At: time.Now().UTC()}

	kind := card.Kind
	if kind == "" {
		kind = fallback
	}

	fields := make(map[string]string, 2)
	modelName := ModelBasic
	switch kind {
	case models.KindCloze:
		modelName = ModelCloze
		fields["Text"] = card.Text
	default:
		fields["Front"] = card.Front
		fields["Back"] = card.Back
	}

	for _, m := range card.Media {
		if m.Filename == "" || len(m.Data) == 0 {
			continue
		}
		if err := c.StoreMediaFile(ctx, m.Filename, m.Data); err != nil {
			result.Error = fmt.Sprintf("store media %s: %v", m.Filename, err)
			return result
		}
	}

	tags := normalizeTags(append(append([]string(nil), card.Tags...), extraTags...))

	var noteID int64
	err := c.invoke(ctx, "addNote", map[string]any{
		"note": note{
			DeckName:  deck,
			ModelName: modelName,
			Fields:    fields,
			Tags:      tags,
			Options:   noteOptions{AllowDuplicate: false},
		},
	}, &noteID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.NoteID = noteID
	return result
}

// SampleExamples pulls a few existing notes from a deck so generation can
// match the user's card style. Best effort: callers degrade to no examples
// on any failure.
func (c *Client) SampleExamples(ctx context.Context, deck string, limit int) ([]models.Card, error) {
	var noteIDs []int64
	query := fmt.Sprintf("deck:%q", deck)
	if err := c.invoke(ctx, "findNotes", map[string]any{"query": query}, &noteIDs); err != nil {
		return nil, err
	}
	if len(noteIDs) == 0 {
		return nil, nil
	}
	if len(noteIDs) > limit {
		noteIDs = noteIDs[:limit]
	}

	var infos []struct {
		ModelName string `json:"modelName"`
		Fields    map[string]struct {
			Value string `json:"value"`
		} `json:"fields"`
		Tags []string `json:"tags"`
	}
	if err := c.invoke(ctx, "notesInfo", map[string]any{"notes": noteIDs}, &infos); err != nil {
		return nil, err
	}

	var cards []models.Card
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.ModelName), "cloze") {
			if text := info.Fields["Text"].Value; text != "" {
				cards = append(cards, models.Card{Kind: models.KindCloze, Text: text, Tags: info.Tags})
			}
			continue
		}
		front := info.Fields["Front"].Value
		back := info.Fields["Back"].Value
		if front != "" && back != "" {
			cards = append(cards, models.Card{Kind: models.KindBasic, Front: front, Back: back, Tags: info.Tags})
		}
	}
	return cards, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		// Anki tags are space-separated.
		tag = strings.ReplaceAll(strings.TrimSpace(tag), " ", "_")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
