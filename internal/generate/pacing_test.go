package generate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacingHint(t *testing.T) {
	t.Run("EmptyBelowFloor", func(t *testing.T) {
		assert.Equal(t, "", PacingHint(9, []int{5}, 40, 1.0))
	})

	t.Run("EmptyWithoutCoverage", func(t *testing.T) {
		assert.Equal(t, "", PacingHint(20, nil, 40, 1.0))
	})

	t.Run("EmptyWhenMaxSlideZero", func(t *testing.T) {
		assert.Equal(t, "", PacingHint(20, []int{0, 0}, 40, 1.0))
	})

	t.Run("OnTargetNoAdvice", func(t *testing.T) {
		hint := PacingHint(20, []int{10}, 40, 1.0)
		assert.Contains(t, hint, "Slide 10")
		assert.NotContains(t, hint, "ADVICE")
	})

	t.Run("TooDense", func(t *testing.T) {
		hint := PacingHint(30, []int{10}, 40, 1.0)
		assert.Contains(t, hint, "ADVICE: Density is too high")
	})

	t.Run("TooSparse", func(t *testing.T) {
		hint := PacingHint(10, []int{20}, 40, 1.0)
		assert.Contains(t, hint, "ADVICE: Density is low")
	})

	t.Run("StatusLineFormat", func(t *testing.T) {
		hint := PacingHint(20, []int{3, 10, 7}, 40, 1.0)
		lines := strings.Split(hint, "\n")
		assert.Len(t, lines, 2)
		assert.Equal(t, "Progress: Slide 10 of 40", lines[0])
		assert.Contains(t, lines[1], "20 cards so far")
	})
}
