package consolidation

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true, "this": true,
	"are": true, "was": true, "were": true, "from": true, "have": true, "has": true,
	"but": true, "not": true, "you": true, "our": true, "its": true, "into": true,
	"when": true, "then": true, "than": true, "them": true, "they": true, "there": true,
	"should": true, "would": true, "could": true, "will": true, "just": true, "also": true,
}

// terms returns the distinct content words of s.
func terms(s string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// jaccard is |a∩b| / |a∪b| over term sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// normalize collapses whitespace and case for exact-duplicate checks.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func firstParagraph(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

// firstSentence returns the first sentence of the first paragraph. A period
// followed by a non-space (as in "v1.2") does not end a sentence.
func firstSentence(content string) string {
	line := firstParagraph(content)
	for i, r := range line {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(line) || line[next] == ' ' {
			return line[:next]
		}
	}
	return line
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// ranked counts values and returns them by count desc, then first
// appearance, at most limit entries.
func ranked(values []string, limit int) []string {
	count := map[string]int{}
	first := map[string]int{}
	display := map[string]string{}
	for i, v := range values {
		key := normalize(v)
		if key == "" {
			continue
		}
		if _, ok := count[key]; !ok {
			first[key] = i
			display[key] = strings.TrimSpace(v)
		}
		count[key]++
	}
	keys := make([]string, 0, len(count))
	for k := range count {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if count[keys[i]] != count[keys[j]] {
			return count[keys[i]] > count[keys[j]]
		}
		return first[keys[i]] < first[keys[j]]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = display[k]
	}
	return out
}
