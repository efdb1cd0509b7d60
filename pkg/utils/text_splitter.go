package utils

import "unicode"

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
	Text  string
}

// SplitText splits text into chunks of at most chunkSize runes, each sharing
// roughly overlap runes with its predecessor. Cuts prefer a paragraph break,
// then a sentence end, then whitespace, searched in the back half of the
// window; only a window with none of these is hard-cut. Chunk starts are
// pulled forward to the nearest sentence or word start inside the overlap.
func SplitText(text string, chunkSize int, overlap int) []Span {
	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var spans []Span
	start := skipSpace(runes, 0)
	for start < total {
		end := start + chunkSize
		if end >= total {
			end = total
		} else {
			end = findCut(runes, start+chunkSize/2, end)
		}

		if s, e := trim(runes, start, end); s < e {
			spans = append(spans, Span{Start: s, End: e, Text: string(runes[s:e])})
		}
		if end == total {
			break
		}

		next := alignStart(runes, end-overlap, end)
		if next <= start {
			next = end
		}
		start = skipSpace(runes, next)
	}
	return spans
}

// findCut returns the best cut position in (lo, hi].
func findCut(runes []rune, lo, hi int) int {
	for i := hi; i > lo; i-- {
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hi; i > lo; i-- {
		if isSentenceEnd(runes, i) {
			return i
		}
	}
	for i := hi; i > lo; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return hi
}

// isSentenceEnd reports whether a sentence terminator sits right before i
// and is followed by whitespace or the end of text.
func isSentenceEnd(runes []rune, i int) bool {
	if i < 1 {
		return false
	}
	switch runes[i-1] {
	case '.', '!', '?', ';':
	default:
		return false
	}
	return i == len(runes) || unicode.IsSpace(runes[i])
}

// alignStart moves a raw overlap start forward to a sentence start, or
// failing that a word start, without passing limit.
func alignStart(runes []rune, from, limit int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < limit; i++ {
		if isSentenceEnd(runes, i) {
			return i
		}
	}
	for i := from; i < limit; i++ {
		if i == 0 || unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return limit
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

func trim(runes []rune, s, e int) (int, int) {
	for s < e && unicode.IsSpace(runes[s]) {
		s++
	}
	for e > s && unicode.IsSpace(runes[e-1]) {
		e--
	}
	return s, e
}
