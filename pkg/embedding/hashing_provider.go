package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"unicode"
)

// ErrNoTokens is returned when text contains nothing embeddable.
var ErrNoTokens = errors.New("no embeddable tokens")

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "to": true,
	"in": true, "on": true, "for": true, "is": true, "are": true, "be": true, "it": true,
	"this": true, "that": true, "with": true, "as": true, "at": true, "by": true, "i": true,
}

// HashingEmbedder is an offline embedder based on signed feature hashing of
// word unigrams and bigrams. Output is deterministic for a given dimension.
type HashingEmbedder struct {
	dims int
}

var _ Embedder = &HashingEmbedder{}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Name() string    { return "hashing" }
func (h *HashingEmbedder) Dimensions() int { return h.dims }

func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: h.Name(), Err: err}
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, &Error{Provider: h.Name(), Err: ErrNoTokens}
	}

	vec := make([]float32, h.dims)
	for i, tok := range tokens {
		h.add(vec, tok, 1)
		if i > 0 {
			h.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return Normalize(vec), nil
}

func (h *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if stopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
