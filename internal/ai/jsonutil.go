package ai

import "strings"

// extractJSON removes markdown code block formatting if present and extracts
// the JSON object from a model reply.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Additional safety: find the first { and last } to extract just the JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

// sanitizeForPrompt collapses whitespace and truncates input to limit runes
// before it is embedded in a prompt.
func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
