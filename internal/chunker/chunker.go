// Package chunker splits event content into retrievable chunks and assigns
// each one a fixed token estimate.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMinSize    = 100
	DefaultMaxSize    = 600
)

// Options configures chunking behavior. Sizes are in runes.
type Options struct {
	TargetSize int
	MinSize    int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Piece is one chunk of content.
type Piece struct {
	Seq      int
	Text     string
	TokenEst int
}

// Split splits text into pieces. Content no longer than MaxSize yields a
// single piece; empty content yields none.
func Split(text string, opts Options) []Piece {
	if opts.TargetSize <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	if runeLen(text) <= opts.MaxSize {
		parts = []string{text}
	} else {
		parts = merge(splitParagraphs(text), opts)
	}

	pieces := make([]Piece, 0, len(parts))
	for i, p := range parts {
		pieces = append(pieces, Piece{Seq: i, Text: p, TokenEst: EstimateTokens(p)})
	}
	return pieces
}

// splitParagraphs splits on blank lines and markdown headings.
func splitParagraphs(text string) []string {
	var out, cur []string
	flush := func() {
		if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
			out = append(out, t)
		}
		cur = nil
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
			continue
		case strings.HasPrefix(trimmed, "#"):
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

// merge packs paragraphs up to TargetSize and breaks oversized ones.
func merge(paras []string, opts Options) []string {
	var out []string
	acc := ""
	flush := func() {
		if acc != "" {
			out = append(out, acc)
			acc = ""
		}
	}
	for _, p := range paras {
		if runeLen(p) > opts.MaxSize {
			flush()
			out = append(out, hardSplit(p, opts)...)
			continue
		}
		if acc == "" {
			acc = p
			continue
		}
		if combined := acc + "\n\n" + p; runeLen(combined) <= opts.TargetSize {
			acc = combined
			continue
		}
		flush()
		acc = p
	}
	flush()

	// Fold a short trailing piece into its predecessor when it still fits.
	if n := len(out); n > 1 && runeLen(out[n-1]) < opts.MinSize {
		if combined := out[n-2] + "\n\n" + out[n-1]; runeLen(combined) <= opts.MaxSize {
			out[n-2] = combined
			out = out[:n-1]
		}
	}
	return out
}

// hardSplit breaks an oversized paragraph on sentence boundaries, falling
// back to word boundaries and finally to raw rune windows.
func hardSplit(text string, opts Options) []string {
	units := sentences(text)
	var out []string
	cur := ""
	for _, u := range units {
		if runeLen(u) > opts.MaxSize {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			out = append(out, splitWords(u, opts)...)
			continue
		}
		if cur == "" {
			cur = u
			continue
		}
		if runeLen(cur)+1+runeLen(u) <= opts.TargetSize {
			cur += " " + u
			continue
		}
		out = append(out, cur)
		cur = u
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func sentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' && r != '\n' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func splitWords(text string, opts Options) []string {
	var out []string
	cur := ""
	for _, w := range strings.Fields(text) {
		for runeLen(w) > opts.MaxSize {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			r := []rune(w)
			out = append(out, string(r[:opts.MaxSize]))
			w = string(r[opts.MaxSize:])
		}
		if cur == "" {
			cur = w
			continue
		}
		if runeLen(cur)+1+runeLen(w) <= opts.TargetSize {
			cur += " " + w
			continue
		}
		out = append(out, cur)
		cur = w
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
