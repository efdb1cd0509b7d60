package persona

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/retrieval"
	"ai-consultation-be/pkg/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) []Profile {
	t.Helper()
	profiles, err := DefaultProfiles()
	require.NoError(t, err)
	return profiles
}

func TestDefaultProfiles(t *testing.T) {
	profiles := defaults(t)
	require.Len(t, profiles, 3)

	legal, tech, business := profiles[0], profiles[1], profiles[2]
	assert.Equal(t, "Legal-AI", legal.Name())
	assert.True(t, legal.Grounded)
	assert.InDelta(t, 0.3, legal.Temperature, 1e-9)

	assert.Equal(t, "Tech-AI", tech.Name())
	assert.False(t, tech.Grounded)
	assert.InDelta(t, 0.7, tech.Temperature, 1e-9)

	assert.Equal(t, "Business-AI", business.Name())
	assert.True(t, business.Mediator)
	assert.InDelta(t, 0.6, business.Temperature, 1e-9)

	for _, p := range profiles {
		assert.NotEmpty(t, p.Fallback, p.ID)
		assert.NotEmpty(t, p.ResponseStructure, p.ID)
	}
}

func TestLoadProfiles_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
personas:
  - id: a
    display_name: Alpha
    temperature: 0.2
    fallback: "Alpha has nothing to add."
  - id: b
    display_name: Beta
    temperature: 1.1
    fallback: "Beta has nothing to add."
`), 0o600))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "Beta", profiles[1].Name())

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := Profile{ID: "a", Fallback: "f", Temperature: 0.5}
	tests := []struct {
		name     string
		profiles []Profile
		wantErr  string
	}{
		{name: "empty", profiles: nil, wantErr: "no profiles"},
		{name: "missing id", profiles: []Profile{{Fallback: "f"}}, wantErr: "without id"},
		{name: "duplicate id", profiles: []Profile{ok, ok}, wantErr: "duplicate id"},
		{name: "missing fallback", profiles: []Profile{{ID: "a"}}, wantErr: "fallback"},
		{name: "temperature", profiles: []Profile{{ID: "a", Fallback: "f", Temperature: 2.5}}, wantErr: "temperature"},
		{name: "alias clash", profiles: []Profile{ok, {ID: "b", Fallback: "f", Aliases: []string{"A"}}}, wantErr: "already used"},
		{name: "valid", profiles: []Profile{ok, {ID: "b", Fallback: "f"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.profiles)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRoster(t *testing.T) {
	r, err := NewRoster(defaults(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"legal", "tech", "business"}, r.IDs())
	assert.Equal(t, 3, r.Len())

	for _, name := range []string{"Legal-AI", "legal-ai", "legal", "LegalAI"} {
		id, ok := r.Resolve(name)
		assert.True(t, ok, name)
		assert.Equal(t, "legal", id, name)
	}
	_, ok := r.Resolve("Nobody")
	assert.False(t, ok)

	p, ok := r.Get("tech")
	require.True(t, ok)
	assert.Equal(t, "Tech-AI", p.Name())

	got := transcript.ResolveMentions("@Business-AI please weigh in, and @Tech-AI too", r)
	assert.Equal(t, []string{"business", "tech"}, got)
}

func evidence() []retrieval.Result {
	return []retrieval.Result{
		{
			ChunkID:  7,
			SourceID: "sample/computer-access-basics",
			Text:     "The Computer Fraud and Abuse Act, 18 U.S.C. § 1030, prohibits access without authorization.",
			Metadata: knowledge.Metadata{Citations: []string{"18 U.S.C. § 1030"}},
		},
		{ChunkID: 9, SourceID: "sample/contract-basics", Text: "A contract needs offer, acceptance and consideration."},
	}
}

func turnContext(t *testing.T, id string) TurnContext {
	profiles := defaults(t)
	var self Profile
	for _, p := range profiles {
		if p.ID == id {
			self = p
		}
	}
	return TurnContext{
		SessionID:    "s1",
		Round:        1,
		Profile:      self,
		Participants: profiles,
		UserInput:    "Can we scrape competitor prices?",
		Window: []transcript.Turn{
			{Speaker: transcript.SpeakerUser, Name: "User", Rendered: "Can we scrape competitor prices?"},
			{Speaker: transcript.SpeakerSystem, Name: "System", Rendered: "internal note"},
			{Speaker: "tech", Name: "Tech-AI", Rendered: "Scrapy makes this easy."},
		},
	}
}

func TestPromptBuilder_Sections(t *testing.T) {
	tc := turnContext(t, "legal")
	tc.Evidence = evidence()
	prompt := NewPromptBuilder(tc).Build()

	for _, tag := range []string{"<persona>", "<guidelines>", "<ethical_boundaries>", "<reference_material>", "<conversation>", "<response_structure>", "<user_query>"} {
		assert.Contains(t, prompt, tag)
	}
	assert.True(t, strings.HasPrefix(prompt, "<persona>\nYou are Legal-AI"))
	assert.Contains(t, prompt, "[#7] source: sample/computer-access-basics; cites: 18 U.S.C. § 1030")
	assert.Contains(t, prompt, "[#9] source: sample/contract-basics")
	assert.Contains(t, prompt, "Tech-AI: Scrapy makes this easy.")
	assert.NotContains(t, prompt, "internal note")
	assert.NotContains(t, prompt, "<addressed_to_you>")
	assert.Contains(t, prompt, "@Tech-AI")
	assert.Contains(t, prompt, "Risk tolerance: Very Low")
}

func TestPromptBuilder_UngroundedHasNoReferenceMaterial(t *testing.T) {
	tc := turnContext(t, "tech")
	tc.Evidence = evidence()
	prompt := NewPromptBuilder(tc).Build()
	assert.NotContains(t, prompt, "<reference_material>")
	assert.NotContains(t, prompt, "[#7]")
}

func TestPromptBuilder_GroundedWithoutEvidence(t *testing.T) {
	prompt := NewPromptBuilder(turnContext(t, "legal")).Build()
	assert.Contains(t, prompt, "No passages from the knowledge base matched")
}

func TestPromptBuilder_AddressedSection(t *testing.T) {
	tc := turnContext(t, "legal")
	tc.Rebuttal = true
	tc.Addressed = []Address{{By: "Tech-AI", Text: "@Legal-AI might be overthinking this."}}
	prompt := NewPromptBuilder(tc).Build()

	assert.Contains(t, prompt, "<addressed_to_you>")
	assert.Contains(t, prompt, "Tech-AI addressed you: \"@Legal-AI might be overthinking this.\"")
	assert.Contains(t, prompt, "This is a short follow-up.")
}

func TestPromptBuilder_MediatorGuideline(t *testing.T) {
	prompt := NewPromptBuilder(turnContext(t, "business")).Build()
	assert.Contains(t, prompt, "You are the mediator.")
}

func TestExtractCitations(t *testing.T) {
	ev := evidence()

	text, cited := ExtractCitations("Access without authorization is covered [#7]. See also [#9] and again [#7].", ev)
	assert.Equal(t, []knowledge.ChunkID{7, 9}, cited)
	assert.Contains(t, text, "[#7]")

	text, cited = ExtractCitations("This is settled law [#42]. The statute applies [#7].", ev)
	assert.Equal(t, []knowledge.ChunkID{7}, cited)
	assert.Equal(t, "This is settled law. The statute applies [#7].", text)

	text, cited = ExtractCitations("No markers at all.", nil)
	assert.Empty(t, cited)
	assert.Equal(t, "No markers at all.", text)
}

func TestLabelQuotedEvidence(t *testing.T) {
	ev := evidence()
	quote := "The Computer Fraud and Abuse Act, 18 U.S.C. § 1030, prohibits access without authorization"

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "unlabeled quotation",
			in:   "As the statute says, " + quote + ". Get consent first.",
			want: "As the statute says, " + quote + " [#7]. Get consent first.",
		},
		{
			name: "already labeled",
			in:   quote + " [#7]. Get consent first.",
			want: quote + " [#7]. Get consent first.",
		},
		{
			name: "short overlap",
			in:   "Access without authorization is the key question here for us.",
			want: "Access without authorization is the key question here for us.",
		},
		{
			name: "paraphrase",
			in:   "Federal law bars entering a computer you were never allowed to use.",
			want: "Federal law bars entering a computer you were never allowed to use.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LabelQuotedEvidence(tc.in, ev))
		})
	}

	assert.Equal(t, "As the statute says, "+quote+".", LabelQuotedEvidence("As the statute says, "+quote+".", nil))
}

func TestAgent_ProduceLabelsQuotedEvidence(t *testing.T) {
	gen := &stubGenerator{reply: "The Computer Fraud and Abuse Act, 18 U.S.C. § 1030, prohibits access without authorization. Check the terms."}
	tc := turnContext(t, "legal")
	tc.Evidence = evidence()

	text, err := NewAgent(gen).Produce(context.Background(), tc)
	require.NoError(t, err)
	assert.Contains(t, text, "without authorization [#7].")

	_, cited := ExtractCitations(text, tc.Evidence)
	assert.Equal(t, []knowledge.ChunkID{7}, cited)
}

type stubGenerator struct {
	reply   string
	err     error
	prompts []string
	opts    []llm.Options
}

func (s *stubGenerator) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return s.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, opts ...llm.Option) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.opts = append(s.opts, llm.Apply(llm.Options{}, opts...))
	return s.reply, s.err
}

func TestAgent_Produce(t *testing.T) {
	gen := &stubGenerator{reply: "  Legal-AI: Scraping public pages carries contract risk.  "}
	agent := NewAgent(gen)

	text, err := agent.Produce(context.Background(), turnContext(t, "legal"))
	require.NoError(t, err)
	assert.Equal(t, "Scraping public pages carries contract risk.", text)

	require.Len(t, gen.opts, 1)
	assert.InDelta(t, 0.3, gen.opts[0].Temperature, 1e-9)
	assert.Equal(t, 400, gen.opts[0].MaxTokens)
	assert.Contains(t, gen.prompts[0], "<user_query>\nCan we scrape competitor prices?\n</user_query>")
}

func TestAgent_ProduceErrors(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		agent := NewAgent(&stubGenerator{err: errors.New("connection refused")})
		_, err := agent.Produce(context.Background(), turnContext(t, "tech"))
		var genErr *llm.GenerationError
		require.ErrorAs(t, err, &genErr)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("empty reply", func(t *testing.T) {
		agent := NewAgent(&stubGenerator{reply: "   "})
		_, err := agent.Produce(context.Background(), turnContext(t, "tech"))
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	})

	t.Run("label only", func(t *testing.T) {
		agent := NewAgent(&stubGenerator{reply: "Tech-AI:"})
		_, err := agent.Produce(context.Background(), turnContext(t, "tech"))
		assert.ErrorIs(t, err, llm.ErrEmptyResponse)
	})
}

func TestStripSelfLabel(t *testing.T) {
	p := Profile{ID: "tech", DisplayName: "Tech-AI"}
	assert.Equal(t, "Use the API.", stripSelfLabel("Tech-AI: Use the API.", p))
	assert.Equal(t, "Use the API.", stripSelfLabel("**Tech-AI**: Use the API.", p))
	assert.Equal(t, "Note: use the API.", stripSelfLabel("Note: use the API.", p))
}
