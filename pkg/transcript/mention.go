package transcript

import (
	"regexp"
	"strings"
)

// Mention is a single "@Name" marker found in a turn.
type Mention struct {
	Name        string // name as written, without the marker
	OriginalRaw string // the matched text, e.g. `@Legal-AI` or `@"Legal AI"`
	Offset      int    // byte offset of the marker in the text
}

// Mention patterns:
// @Name          - plain name, letters digits '-' and '_'
// @"Quoted Name" - display name with spaces
var (
	quotedMentionPattern = regexp.MustCompile(`(^|[^\w@])@"([^"]+)"`)
	plainMentionPattern  = regexp.MustCompile(`(^|[^\w@])@([A-Za-z][\w-]*)`)
)

// ParseMentions extracts all @-markers in order of appearance. Addresses
// like "team@example.com" are not mentions.
func ParseMentions(text string) []Mention {
	var mentions []Mention

	for _, m := range quotedMentionPattern.FindAllStringSubmatchIndex(text, -1) {
		mentions = append(mentions, Mention{
			Name:        text[m[4]:m[5]],
			OriginalRaw: text[m[3]:m[1]],
			Offset:      m[3],
		})
	}

	for _, m := range plainMentionPattern.FindAllStringSubmatchIndex(text, -1) {
		name := strings.TrimRight(text[m[4]:m[5]], "-_")
		if name == "" {
			continue
		}
		mentions = append(mentions, Mention{
			Name:        name,
			OriginalRaw: "@" + name,
			Offset:      m[3],
		})
	}

	// Order of appearance across both syntaxes.
	for i := 1; i < len(mentions); i++ {
		for j := i; j > 0 && mentions[j].Offset < mentions[j-1].Offset; j-- {
			mentions[j], mentions[j-1] = mentions[j-1], mentions[j]
		}
	}
	return mentions
}

// Resolver maps a written mention name to a persona id.
type Resolver interface {
	Resolve(name string) (id string, ok bool)
}

// ResolveMentions returns the persona ids named in text, in order of first
// appearance and without duplicates. Unknown names are ignored.
func ResolveMentions(text string, r Resolver) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range ParseMentions(text) {
		id, ok := r.Resolve(m.Name)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
