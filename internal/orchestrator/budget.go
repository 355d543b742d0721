package orchestrator

import (
	"path/filepath"
	"strings"

	"ankigen/internal/models"
)

const (
	minCardCap       = 10
	maxCardCap       = 300
	defaultBatchSize = 10

	// scriptCharsPerPage separates dense lecture scripts from sparse slide
	// decks; scripts carry far more material per page.
	scriptCharsPerPage = 1800

	slidesDensity = 1.5
	scriptDensity = 4.0
)

// Budget derives the total card cap and per-round batch size for a document.
// An explicit target wins; otherwise the cap comes from the page count and a
// density that depends on whether the document reads like a script or a
// slide deck. The returned density (cards per page) feeds the pacing advisor.
func Budget(doc *models.SourceDocument, explicitTarget int, densityOverride float64) (cap, batch int, density float64, kind string) {
	kind = "slides"
	if doc.PageCount > 0 && doc.CharCount/doc.PageCount >= scriptCharsPerPage {
		kind = "script"
	}

	switch {
	case explicitTarget > 0:
		cap = explicitTarget
	default:
		perPage := densityOverride
		if perPage <= 0 {
			perPage = slidesDensity
			if kind == "script" {
				perPage = scriptDensity
			}
		}
		cap = int(float64(doc.PageCount) * perPage)
	}

	if cap < minCardCap {
		cap = minCardCap
	}
	if cap > maxCardCap {
		cap = maxCardCap
	}

	batch = defaultBatchSize
	if cap < batch {
		batch = cap
	}

	if doc.PageCount > 0 {
		density = float64(cap) / float64(doc.PageCount)
	}
	return cap, batch, density, kind
}

// SlideSetName derives a readable name from the source filename when the
// model did not supply one.
func SlideSetName(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Untitled"
	}
	return name
}
