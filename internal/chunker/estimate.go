package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/rcliao/working-memory/internal/model"
)

// RunesPerToken is the fixed ratio used by EstimateTokens.
const RunesPerToken = 4

// EstimateTokens approximates the token cost of text as ceil(runes/4).
// Non-empty text costs at least one token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + RunesPerToken - 1) / RunesPerToken
}

var kindImportance = map[model.EventKind]float64{
	model.KindDecision:   0.9,
	model.KindTaskUpdate: 0.8,
	model.KindToolResult: 0.5,
	model.KindToolCall:   0.4,
	model.KindMessage:    0.3,
}

var boostTags = map[string]bool{
	"important": true,
	"pinned":    true,
	"critical":  true,
}

// Importance scores an event's chunks in [0,1]. An explicit hint wins over
// the kind and tag heuristics.
func Importance(kind model.EventKind, tags []string, hint *float64) float64 {
	if hint != nil {
		return clamp(*hint)
	}
	score, ok := kindImportance[kind]
	if !ok {
		score = 0.3
	}
	for _, t := range tags {
		if boostTags[strings.ToLower(t)] {
			score += 0.1
			break
		}
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
