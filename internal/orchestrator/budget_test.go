package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ankigen/internal/models"
)

func TestBudget(t *testing.T) {
	t.Run("SlideDeckDensity", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 40, CharCount: 40 * 500}
		cap, batch, density, kind := Budget(doc, 0, 0)
		assert.Equal(t, "slides", kind)
		assert.Equal(t, 60, cap) // 40 pages * 1.5
		assert.Equal(t, 10, batch)
		assert.InDelta(t, 1.5, density, 0.001)
	})

	t.Run("ScriptDensity", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 20, CharCount: 20 * 2500}
		cap, _, _, kind := Budget(doc, 0, 0)
		assert.Equal(t, "script", kind)
		assert.Equal(t, 80, cap) // 20 pages * 4.0
	})

	t.Run("ExplicitTargetWins", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 40, CharCount: 40 * 500}
		cap, _, density, _ := Budget(doc, 25, 9.0)
		assert.Equal(t, 25, cap)
		assert.InDelta(t, 0.625, density, 0.001)
	})

	t.Run("DensityOverride", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 40, CharCount: 40 * 500}
		cap, _, _, _ := Budget(doc, 0, 2.0)
		assert.Equal(t, 80, cap)
	})

	t.Run("ClampedToFloor", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 2, CharCount: 1000}
		cap, batch, _, _ := Budget(doc, 1, 0)
		assert.Equal(t, 10, cap)
		assert.Equal(t, 10, batch)
	})

	t.Run("ClampedToCeiling", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 500, CharCount: 500 * 2000}
		cap, _, _, _ := Budget(doc, 0, 0)
		assert.Equal(t, 300, cap)
	})

	t.Run("SmallCapShrinksBatch", func(t *testing.T) {
		doc := &models.SourceDocument{PageCount: 4, CharCount: 4 * 500}
		cap, batch, _, _ := Budget(doc, 0, 0)
		assert.Equal(t, 10, cap)
		assert.Equal(t, 10, batch)
	})
}

func TestSlideSetName(t *testing.T) {
	assert.Equal(t, "lecture 03 intro", SlideSetName("/tmp/uploads/lecture_03-intro.pdf"))
	assert.Equal(t, "Bio Week 4", SlideSetName("Bio Week 4.pdf"))
	assert.Equal(t, "Untitled", SlideSetName(".pdf"))
}
