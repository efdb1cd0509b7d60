package persona

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"ai-consultation-be/pkg/llm"
)

// Agent turns a TurnContext into one utterance. It keeps no state between
// calls; everything it knows arrives in the context.
type Agent struct {
	generator llm.LLMProvider
}

func NewAgent(generator llm.LLMProvider) *Agent {
	return &Agent{generator: generator}
}

// Produce renders the prompt, asks the generator for a reply with the
// persona's sampling parameters and returns the trimmed text, with labels
// added after evidence it quotes without citing. Backend
// failures come back as *llm.GenerationError.
func (a *Agent) Produce(ctx context.Context, tc TurnContext) (string, error) {
	prompt := NewPromptBuilder(tc).Build()

	opts := []llm.Option{llm.WithTemperature(tc.Profile.Temperature)}
	if tc.Profile.TopP > 0 {
		opts = append(opts, llm.WithTopP(tc.Profile.TopP))
	}
	if tc.Profile.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(tc.Profile.MaxTokens))
	}

	text, err := a.generator.Generate(ctx, prompt, opts...)
	if err != nil {
		var genErr *llm.GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		return "", &llm.GenerationError{Provider: "persona:" + tc.Profile.ID, Err: err}
	}

	text = stripSelfLabel(strings.TrimSpace(text), tc.Profile)
	if text == "" {
		return "", &llm.GenerationError{Provider: "persona:" + tc.Profile.ID, Err: llm.ErrEmptyResponse}
	}
	return LabelQuotedEvidence(text, tc.Evidence), nil
}

var labelPrefix = regexp.MustCompile(`^\**([A-Za-z][\w -]*?)\**\s*:\s*`)

// stripSelfLabel drops a leading "Legal-AI:" echo of the closing cue.
func stripSelfLabel(text string, p Profile) string {
	m := labelPrefix.FindStringSubmatch(text)
	if m == nil {
		return text
	}
	name := strings.ToLower(strings.TrimSpace(m[1]))
	for _, n := range p.MentionNames() {
		if strings.ToLower(n) == name {
			return strings.TrimSpace(text[len(m[0]):])
		}
	}
	return text
}
