package generate

import (
	"strings"

	"ankigen/internal/models"
)

const maxFingerprintLen = 120

// Fingerprint derives the canonical dedup key for a card: the primary
// content field with whitespace collapsed, lower-cased and bounded in
// length. An empty result means the card has no usable content and is never
// entered into a seen-set.
func Fingerprint(c models.Card) string {
	collapsed := strings.Join(strings.Fields(c.PrimaryText()), " ")
	collapsed = strings.ToLower(collapsed)
	runes := []rune(collapsed)
	if len(runes) > maxFingerprintLen {
		return string(runes[:maxFingerprintLen])
	}
	return collapsed
}
