package persona

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/retrieval"
)

var (
	citationPattern  = regexp.MustCompile(`\s?\[#(\d+)\]`)
	doubleSpace      = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([.,;:!?])`)
)

// EvidenceLabel is the marker a persona uses to cite a chunk.
func EvidenceLabel(id knowledge.ChunkID) string {
	return fmt.Sprintf("[#%d]", id)
}

// ExtractCitations returns text with markers naming chunks outside evidence
// removed, and the ids of the remaining markers in order of first use.
func ExtractCitations(text string, evidence []retrieval.Result) (string, []knowledge.ChunkID) {
	known := make(map[knowledge.ChunkID]bool, len(evidence))
	for _, e := range evidence {
		known[e.ChunkID] = true
	}

	var cited []knowledge.ChunkID
	seen := make(map[knowledge.ChunkID]bool)
	removed := false

	out := citationPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := citationPattern.FindStringSubmatch(m)
		n, err := strconv.ParseUint(sub[1], 10, 64)
		id := knowledge.ChunkID(n)
		if err != nil || !known[id] {
			removed = true
			return ""
		}
		if !seen[id] {
			seen[id] = true
			cited = append(cited, id)
		}
		return m
	})

	if removed {
		out = doubleSpace.ReplaceAllString(out, " ")
		out = spaceBeforePunct.ReplaceAllString(out, "$1")
		out = strings.TrimSpace(out)
	}
	return out, cited
}

// minQuoteWords is the shortest run of chunk words treated as a quotation.
const minQuoteWords = 8

type word struct {
	text       string
	start, end int
}

func splitWordSpans(s string) []word {
	var out []word
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, word{text: s[start:i], start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, word{text: s[start:], start: start, end: len(s)})
	}
	return out
}

func joinWords(ws []word) string {
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

// LabelQuotedEvidence appends the evidence label after every passage of text
// that repeats at least minQuoteWords consecutive words of a chunk whose
// label text does not already carry.
func LabelQuotedEvidence(text string, evidence []retrieval.Result) string {
	words := splitWordSpans(text)
	if len(words) < minQuoteWords {
		return text
	}

	// inserts maps a byte offset in text to the labels placed there.
	inserts := make(map[int][]string)
	for _, e := range evidence {
		label := EvidenceLabel(e.ChunkID)
		if strings.Contains(text, label) {
			continue
		}
		chunkWords := splitWordSpans(e.Text)
		if len(chunkWords) < minQuoteWords {
			continue
		}
		grams := make(map[string]bool, len(chunkWords))
		for i := 0; i+minQuoteWords <= len(chunkWords); i++ {
			grams[joinWords(chunkWords[i:i+minQuoteWords])] = true
		}

		for i := 0; i+minQuoteWords <= len(words); {
			if !grams[joinWords(words[i:i+minQuoteWords])] {
				i++
				continue
			}
			// Extend over overlapping grams so one quotation gets one label.
			last := i + minQuoteWords - 1
			for last+1 < len(words) && grams[joinWords(words[last+2-minQuoteWords:last+2])] {
				last++
			}
			at := quoteEnd(text, words[last])
			inserts[at] = append(inserts[at], label)
			i = last + 1
		}
	}
	if len(inserts) == 0 {
		return text
	}

	offsets := make([]int, 0, len(inserts))
	for at := range inserts {
		offsets = append(offsets, at)
	}
	sort.Ints(offsets)

	var b strings.Builder
	prev := 0
	for _, at := range offsets {
		b.WriteString(text[prev:at])
		b.WriteString(" " + strings.Join(inserts[at], " "))
		prev = at
	}
	b.WriteString(text[prev:])
	return b.String()
}

// quoteEnd is the offset after w without its closing punctuation, so the
// label lands before "." or a closing quote.
func quoteEnd(text string, w word) int {
	end := w.end
	for end > w.start {
		r, size := utf8.DecodeLastRuneInString(text[w.start:end])
		if !unicode.IsPunct(r) {
			break
		}
		end -= size
	}
	if end == w.start {
		return w.end
	}
	return end
}
