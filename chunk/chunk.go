// Package chunk splits extracted text into overlapping windows. Window
// boundaries prefer structural breakpoints (paragraph, then sentence, then
// word) over mid-token cuts when the text looks structured; unstructured
// byte soup is cut at exact window size. Offsets are rune-based.
package chunk

import "fmt"

// Options controls the window geometry. MaxOverlap must be strictly less
// than MaxChars.
type Options struct {
	MaxChars   int
	MaxOverlap int
}

// Chunk is one window of the source text.
type Chunk struct {
	Index       int    `json:"index"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	OverlapPrev int    `json:"overlap_prev"`
	Text        string `json:"text"`
}

// Split cuts text into chunks of at most MaxChars runes with at most
// MaxOverlap runes shared between consecutive chunks. Empty text yields
// nil. Invalid options are an error; callers validate geometry before any
// extraction work, so hitting this at split time is a programming bug.
func Split(text string, opts Options) ([]Chunk, error) {
	if opts.MaxChars <= 0 {
		return nil, fmt.Errorf("max_chars must be positive, got %d", opts.MaxChars)
	}
	if opts.MaxOverlap < 0 {
		return nil, fmt.Errorf("max_overlap must not be negative, got %d", opts.MaxOverlap)
	}
	if opts.MaxOverlap >= opts.MaxChars {
		return nil, fmt.Errorf("max_overlap %d must be less than max_chars %d", opts.MaxOverlap, opts.MaxChars)
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= opts.MaxChars {
		return []Chunk{{Index: 0, Start: 0, End: len(runes), Text: text}}, nil
	}

	structured := isStructured(runes)

	var chunks []Chunk
	start := 0
	prevEnd := 0
	for start < len(runes) {
		end := start + opts.MaxChars
		if end >= len(runes) {
			end = len(runes)
		} else if structured {
			end = backoff(runes, start, end)
		}

		c := Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		}
		if len(chunks) > 0 {
			c.OverlapPrev = prevEnd - start
		}
		chunks = append(chunks, c)

		if end == len(runes) {
			break
		}
		next := end - opts.MaxOverlap
		if next <= start {
			next = end
		}
		prevEnd = end
		start = next
	}
	return chunks, nil
}

// isStructured reports whether the text carries any boundary worth
// honoring.
func isStructured(runes []rune) bool {
	for _, r := range runes {
		if r == '\n' || r == ' ' {
			return true
		}
	}
	return false
}

// backoff moves a cut point backwards to the best structural breakpoint,
// searching no further back than half a window so chunks never degenerate.
func backoff(runes []rune, start, end int) int {
	minEnd := start + (end-start)/2

	// Paragraph break.
	for i := end - 1; i > minEnd; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// Sentence end followed by whitespace.
	for i := end - 1; i > minEnd; i-- {
		if isSpace(runes[i]) && i > 0 && isSentenceEnd(runes[i-1]) {
			return i + 1
		}
	}
	// Word boundary.
	for i := end - 1; i > minEnd; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
