package policy

import (
	"strings"
)

type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionRewrite Decision = "rewrite"
	DecisionBlock   Decision = "block"
)

type ReasonCode string

const (
	ReasonOK               ReasonCode = "ok"
	ReasonDisallowedIntent ReasonCode = "disallowed_intent"
	ReasonCircumvention    ReasonCode = "guard_circumvention"
	ReasonPartial          ReasonCode = "partial_disallowed"
)

// Verdict is computed for every turn before it is stored.
// RewrittenText is set for rewrite and block and is never empty for block.
type Verdict struct {
	Decision      Decision   `json:"decision"`
	RewrittenText string     `json:"rewrittenText,omitempty"`
	Reason        ReasonCode `json:"reason"`
	Categories    []Category `json:"categories,omitempty"`
	Alternative   string     `json:"alternative,omitempty"`
}

func (v Verdict) Allowed() bool {
	return v.Decision == DecisionAllow
}

// Text returns what may be shown for the checked input: the original on
// allow, the rewritten text otherwise.
func (v Verdict) Text(original string) string {
	if v.Allowed() {
		return original
	}
	return v.RewrittenText
}

const (
	DefaultRefusalTemplate = "I can't help with that because it asks for something unlawful or harmful. {alternative}"
	redactionNote          = "[Part of this reply was withheld under the content policy.]"
	genericAlternative     = "I'm happy to help you find a lawful way to reach the same goal."
)

type Guard struct {
	refusalTemplate string
}

type Option func(*Guard)

// WithRefusalTemplate sets the block message. "{alternative}" is replaced by
// the category alternative; a template without it gets the alternative appended.
func WithRefusalTemplate(tpl string) Option {
	return func(g *Guard) {
		if strings.TrimSpace(tpl) != "" {
			g.refusalTemplate = tpl
		}
	}
}

func NewGuard(opts ...Option) *Guard {
	g := &Guard{refusalTemplate: DefaultRefusalTemplate}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type sentenceResult struct {
	sentence
	disallowed    bool
	circumvention bool
	categories    []Category
}

// Check classifies text. It is a pure function of its input.
func (g *Guard) Check(text string) Verdict {
	text = strings.ToValidUTF8(text, "\uFFFD")
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return Verdict{Decision: DecisionAllow, Reason: ReasonOK}
	}

	results := make([]sentenceResult, len(sentences))
	var (
		anyDisallowed, allDisallowed, circumvention = false, true, false
		categories                                  []Category
	)
	for i, s := range sentences {
		r := evaluate(s)
		results[i] = r
		if r.disallowed {
			anyDisallowed = true
			categories = appendUnique(categories, r.categories...)
		} else {
			allDisallowed = false
		}
		circumvention = circumvention || r.circumvention
	}

	if !anyDisallowed {
		return Verdict{Decision: DecisionAllow, Reason: ReasonOK}
	}

	// A role-play or hypothetical wrapper in one sentence taints an act
	// requested in another.
	if !circumvention && framingTrick.MatchString(normalize(text)) {
		circumvention = true
	}

	if circumvention {
		categories = moveToFront(categories, CategoryCircumvention)
	}
	alternative := alternativeFor(categories)

	switch {
	case circumvention:
		return g.block(ReasonCircumvention, categories, alternative)
	case allDisallowed:
		return g.block(ReasonDisallowedIntent, categories, alternative)
	}

	var kept []string
	for _, r := range results {
		if !r.disallowed {
			kept = append(kept, strings.TrimSpace(text[r.start:r.end]))
		}
	}
	rewritten := strings.Join(kept, " ") + "\n\n" + redactionNote + " " + alternative
	return Verdict{
		Decision:      DecisionRewrite,
		RewrittenText: rewritten,
		Reason:        ReasonPartial,
		Categories:    categories,
		Alternative:   alternative,
	}
}

func (g *Guard) block(reason ReasonCode, categories []Category, alternative string) Verdict {
	var msg string
	if strings.Contains(g.refusalTemplate, "{alternative}") {
		msg = strings.ReplaceAll(g.refusalTemplate, "{alternative}", alternative)
	} else {
		msg = strings.TrimSpace(g.refusalTemplate) + " " + alternative
	}
	return Verdict{
		Decision:      DecisionBlock,
		RewrittenText: strings.TrimSpace(msg),
		Reason:        reason,
		Categories:    categories,
		Alternative:   alternative,
	}
}

func evaluate(s sentence) sentenceResult {
	res := sentenceResult{sentence: s}
	strong := false
	sensitive := sensitiveObject.MatchString(s.norm)

	for _, rl := range rules {
		if !hits(rl, s.norm, sensitive) {
			continue
		}
		res.categories = appendUnique(res.categories, rl.category)
		if rl.strong {
			strong = true
		}
		if rl.category == CategoryCircumvention {
			res.circumvention = true
		}
	}
	if len(res.categories) == 0 {
		return res
	}

	framed := framingTrick.MatchString(s.norm)
	intent := requestFrame.MatchString(s.norm) ||
		instructionFrame.MatchString(s.norm) ||
		imperativeStart.MatchString(s.norm)

	res.disallowed = strong || intent || framed
	if framed && res.disallowed {
		res.circumvention = true
		res.categories = appendUnique(res.categories, CategoryCircumvention)
	}
	return res
}

func hits(rl rule, norm string, sensitive bool) bool {
	var excepts [][]int
	if rl.except != nil && !(rl.strictObjects && sensitive) {
		excepts = rl.except.FindAllStringIndex(norm, -1)
	}
	window := 3
	if rl.strong {
		window = 1
	}
	for _, loc := range rl.pattern.FindAllStringIndex(norm, -1) {
		if overlaps(loc, excepts) || negated(norm, loc[0], window) {
			continue
		}
		return true
	}
	return false
}

func overlaps(loc []int, spans [][]int) bool {
	for _, sp := range spans {
		if loc[0] < sp[1] && sp[0] < loc[1] {
			return true
		}
	}
	return false
}

func alternativeFor(categories []Category) string {
	var parts []string
	for _, c := range categories {
		if alt, ok := alternatives[c]; ok {
			parts = append(parts, alt)
		}
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		return genericAlternative
	}
	return strings.Join(parts, " ")
}

func appendUnique(dst []Category, cs ...Category) []Category {
	for _, c := range cs {
		found := false
		for _, d := range dst {
			if d == c {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, c)
		}
	}
	return dst
}

func moveToFront(cs []Category, c Category) []Category {
	out := []Category{c}
	for _, x := range cs {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}
