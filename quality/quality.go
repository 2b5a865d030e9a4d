// Package quality scores extracted text with signal/noise heuristics:
// printable-character ratio, word-shape ratio, repeated-run density and
// character entropy. Scores are deterministic for identical input.
package quality

import (
	"math"
	"strings"
	"unicode"
)

// Metrics captures the individual heuristics behind a score.
type Metrics struct {
	Chars          int     `json:"chars"`
	PrintableRatio float64 `json:"printable_ratio"`
	WordlikeRatio  float64 `json:"wordlike_ratio"`
	RepeatRunRatio float64 `json:"repeat_run_ratio"`
	Entropy        float64 `json:"entropy"`
}

// Measure computes all heuristics for text.
func Measure(text string) Metrics {
	return Metrics{
		Chars:          len([]rune(text)),
		PrintableRatio: PrintableRatio(text),
		WordlikeRatio:  wordlikeRatio(text),
		RepeatRunRatio: repeatRunRatio(text),
		Entropy:        charEntropy(text),
	}
}

// Score folds the metrics into a deterministic value in [0,1]. Empty text
// scores zero.
func Score(text string) float64 {
	if text == "" {
		return 0
	}
	m := Measure(text)

	// Entropy of natural-language text sits roughly in [3.5, 5] bits per
	// character; both a flat repetition (low entropy) and binary noise
	// (high entropy) indicate a bad extraction.
	entropyScore := 1.0
	switch {
	case m.Entropy < 2.0:
		entropyScore = m.Entropy / 2.0
	case m.Entropy > 6.5:
		entropyScore = math.Max(0, 1.0-(m.Entropy-6.5)/1.5)
	}

	score := 0.4*m.PrintableRatio + 0.3*m.WordlikeRatio + 0.2*(1.0-m.RepeatRunRatio) + 0.1*entropyScore
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// PrintableRatio returns the ratio of printable characters in text.
// Excludes PUA U+E000-U+F8FF, control chars below U+0020 (except \n\r\t)
// and U+FFFD. Empty text counts as fully printable.
func PrintableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total := 0
	printable := 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	// Private Use Area
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	// Replacement character
	if r == 0xFFFD {
		return true
	}
	// Control chars except whitespace
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// wordlikeRatio returns the ratio of word-like tokens (length 2-15) to
// total tokens.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		n := len([]rune(f))
		if n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

// repeatRunRatio returns the fraction of characters belonging to runs of
// four or more identical runes.
func repeatRunRatio(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	repeated := 0
	runStart := 0
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || runes[i] != runes[runStart] {
			if run := i - runStart; run >= 4 {
				repeated += run
			}
			runStart = i
		}
	}
	return float64(repeated) / float64(len(runes))
}

// charEntropy returns the Shannon entropy of the rune distribution in
// bits per character.
func charEntropy(text string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}
	entropy := 0.0
	for _, n := range counts {
		p := float64(n) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
