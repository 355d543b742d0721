package generate

import (
	"fmt"
	"strings"
)

const pacingMinCards = 10

// PacingHint produces the advisory steering text injected into the next
// generation prompt. It returns "" until enough cards exist to judge pace,
// or when no slide coverage is known. The hint is advice for the model only;
// the hard cap is enforced by the loop itself.
func PacingHint(currentCards int, coveredSlides []int, totalPages int, target float64) string {
	if currentCards < pacingMinCards || len(coveredSlides) == 0 {
		return ""
	}
	maxSlide := 0
	for _, n := range coveredSlides {
		if n > maxSlide {
			maxSlide = n
		}
	}
	if maxSlide == 0 {
		return ""
	}

	// Cards below the activation floor are warm-up coverage and do not count
	// against the target pace.
	actual := float64(currentCards-pacingMinCards) / float64(maxSlide)

	var b strings.Builder
	fmt.Fprintf(&b, "Progress: Slide %d of %d\n", maxSlide, totalPages)
	fmt.Fprintf(&b, "Status: %d cards so far (~%.1f per slide)", currentCards, actual)

	switch {
	case target > 0 && actual > 1.25*target:
		b.WriteString("\nADVICE: Density is too high. Raise the quality bar and only keep cards covering essential material.")
	case target > 0 && actual < 0.75*target:
		b.WriteString("\nADVICE: Density is low. Check for important material you may have skipped.")
	}
	return b.String()
}
