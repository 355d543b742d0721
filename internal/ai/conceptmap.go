package ai

import (
	"context"
	"encoding/json"
	"fmt"
)

const conceptMapSchema = `{"objectives":[""],"concepts":[{"id":"","name":"","definition":"","category":"","importance":"","difficulty":""}],"relations":[{"sourceId":"","targetId":"","type":"","page":0}],"language":"","slideSetName":""}`

// BuildConceptMap asks the model for a one-shot structured summary of the
// document already loaded into the session. The result steers every later
// generation prompt and is read-only afterwards.
func (s *Session) BuildConceptMap(ctx context.Context) (*ConceptMapResponse, error) {
	prompt := fmt.Sprintf(`Analyze the lecture document above and produce a concept map.
Strictly respond with a JSON object %s.
List the learning objectives, the key concepts with short definitions, and the relations between concepts (relation types like "depends_on", "part_of", "contrasts_with"). Detect the document language and suggest a short slide-set name.`, conceptMapSchema)

	content, err := s.converse(ctx, prompt, 0.2)
	if err != nil {
		return nil, err
	}

	var resp ConceptMapResponse
	jsonStr := extractJSON(content)
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal concept map json: %w", err)
	}
	return &resp, nil
}

// ConceptMapResponse mirrors the model-facing concept map shape before it is
// merged with document metadata.
type ConceptMapResponse struct {
	Objectives []string `json:"objectives"`
	Concepts []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Definition string `json:"definition"`
		Category   string `json:"category"`
		Importance string `json:"importance"`
		Difficulty string `json:"difficulty"`
	} `json:"concepts"`
	Relations []struct {
		SourceID string `json:"sourceId"`
		TargetID string `json:"targetId"`
		Type     string `json:"type"`
		Page     int    `json:"page"`
	} `json:"relations"`
	Language     string `json:"language"`
	SlideSetName string `json:"slideSetName"`
}
