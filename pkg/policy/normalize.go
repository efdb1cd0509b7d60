package policy

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldRunes = map[rune]rune{
	// leetspeak
	'0': 'o', '1': 'i', '3': 'e', '4': 'a', '5': 's', '7': 't', '@': 'a', '$': 's', '|': 'l',
	// common Cyrillic and Greek look-alikes
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y', 'і': 'i', 'ѕ': 's', 'ј': 'j',
	'α': 'a', 'ο': 'o', 'ε': 'e', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'τ': 't',
}

func stripMarks() transform.Transformer {
	return transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.In(unicode.Cf)),
		norm.NFC,
	)
}

// normalize reduces text to lower-case ASCII-ish words separated by single
// spaces. Accents, zero-width characters, leetspeak and look-alike letters
// are folded, apostrophes are dropped ("don't" -> "dont") and letters spelled
// out one at a time ("h.a.c.k", "h a c k") are joined back together.
func normalize(text string) string {
	folded, _, err := transform.String(stripMarks(), text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if f, ok := foldRunes[r]; ok {
			r = f
		}
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(joinSpelledOut(strings.Fields(b.String())), " ")
}

// joinSpelledOut merges runs of three or more single-letter tokens.
func joinSpelledOut(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		j := i
		for j < len(tokens) && len([]rune(tokens[j])) == 1 {
			j++
		}
		if j-i >= 3 {
			run := tokens[i:j]
			// "i" and "a" are words on their own at the edges of a run:
			// "how do i f o r g e a signature".
			var head, tail []string
			if len(run) >= 4 && isWordLetter(run[0]) {
				head, run = run[:1], run[1:]
			}
			if len(run) >= 4 && isWordLetter(run[len(run)-1]) {
				run, tail = run[:len(run)-1], run[len(run)-1:]
			}
			out = append(out, head...)
			out = append(out, strings.Join(run, ""))
			out = append(out, tail...)
			i = j
			continue
		}
		if j == i {
			j = i + 1
		}
		out = append(out, tokens[i:j]...)
		i = j
	}
	return out
}

// sentence is a slice of the original text and its normalized form.
type sentence struct {
	start, end int
	norm       string
}

// splitSentences cuts on newlines and on terminal punctuation followed by
// whitespace and an upper-case letter, quote, parenthesis or @-marker, so
// abbreviations like "U.S.C. § 1030" stay together.
func splitSentences(text string) []sentence {
	var out []sentence
	// Ranging over the string keeps offsets right for invalid bytes, which
	// decode as one-byte utf8.RuneError.
	rs := make([]rune, 0, len(text))
	byteAt := make([]int, 0, len(text)+1)
	for off, r := range text {
		rs = append(rs, r)
		byteAt = append(byteAt, off)
	}
	byteAt = append(byteAt, len(text))

	emit := func(s, e int) {
		seg := text[byteAt[s]:byteAt[e]]
		if n := normalize(seg); n != "" {
			out = append(out, sentence{start: byteAt[s], end: byteAt[e], norm: n})
		}
	}

	start := 0
	for i := 0; i < len(rs); i++ {
		if rs[i] == '\n' {
			emit(start, i+1)
			start = i + 1
			continue
		}
		if rs[i] != '.' && rs[i] != '!' && rs[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(rs) && (rs[j] == '.' || rs[j] == '!' || rs[j] == '?') {
			j++
		}
		k := j
		for k < len(rs) && rs[k] == ' ' {
			k++
		}
		if k == len(rs) || (k > j && startsSentence(rs[k])) {
			emit(start, k)
			start = k
			i = k - 1
		}
	}
	if start < len(rs) {
		emit(start, len(rs))
	}
	return out
}

func startsSentence(r rune) bool {
	return unicode.IsUpper(r) || r == '"' || r == '(' || r == '@' || r == '“'
}

func isWordLetter(tok string) bool {
	return tok == "a" || tok == "i"
}
