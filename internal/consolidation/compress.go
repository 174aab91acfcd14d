package consolidation

import (
	"strings"

	"github.com/rcliao/working-memory/internal/model"
)

const (
	summaryRunes  = 240
	quickRefRunes = 80
)

// compressText renders the text an episode keeps at level to.
func compressText(ep model.Episode, to model.CompressionLevel) string {
	switch to {
	case model.LevelSummary:
		parts := []string{firstSentence(ep.WhatHappened)}
		if len(ep.WhatLearned) > 0 {
			parts = append(parts, "Learned: "+strings.TrimSpace(ep.WhatLearned[0]))
		}
		return truncateRunes(strings.Join(nonEmpty(parts), " "), summaryRunes)
	case model.LevelQuickRef:
		return truncateRunes(firstSentence(ep.Text()), quickRefRunes)
	default:
		// integrated episodes keep their quick reference; the detail now
		// lives in principles and reflections
		return ep.Text()
	}
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
