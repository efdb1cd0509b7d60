package consultation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/llm/mock"
	"ai-consultation-be/pkg/persona"
	"ai-consultation-be/pkg/policy"
	"ai-consultation-be/pkg/retrieval"
	"ai-consultation-be/pkg/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster(t *testing.T) *persona.Roster {
	t.Helper()
	r, err := persona.NewRoster([]persona.Profile{
		{ID: "alpha", DisplayName: "Alpha", Role: "Legal Expert", Grounded: true, Temperature: 0.3, Fallback: "Alpha fallback."},
		{ID: "beta", DisplayName: "Beta", Role: "Technical Expert", Temperature: 0.7, Fallback: "Beta fallback."},
		{ID: "gamma", DisplayName: "Gamma", Role: "Business Expert", Mediator: true, Temperature: 0.6, Fallback: "Gamma fallback."},
	})
	require.NoError(t, err)
	return r
}

// scriptedProducer answers each persona from its script, one entry per
// call. Missing entries get a plain reply.
type scriptedProducer struct {
	mu       sync.Mutex
	scripts  map[string][]string
	errs     map[string]error
	calls    map[string]int
	contexts []persona.TurnContext
}

func newScripted(scripts map[string][]string) *scriptedProducer {
	return &scriptedProducer{scripts: scripts, errs: map[string]error{}, calls: map[string]int{}}
}

func (p *scriptedProducer) Produce(_ context.Context, tc persona.TurnContext) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts = append(p.contexts, tc)
	id := tc.Profile.ID
	n := p.calls[id]
	p.calls[id]++
	if err := p.errs[id]; err != nil {
		return "", err
	}
	if s := p.scripts[id]; n < len(s) {
		return s[n], nil
	}
	return tc.Profile.Name() + " has a view on this.", nil
}

func (p *scriptedProducer) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

func newTestOrchestrator(t *testing.T, producer Producer, retriever Retriever, sink Sink, cfg Config) *Orchestrator {
	t.Helper()
	return NewOrchestrator(testRoster(t), producer, policy.NewGuard(), retriever, sink, cfg, logger.NewNopLogger())
}

func speakers(turns []transcript.Turn) []string {
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = string(t.Speaker)
	}
	return out
}

func TestRunRound_SequenceIsContiguous(t *testing.T) {
	o := newTestOrchestrator(t, newScripted(nil), nil, nil, DefaultConfig())
	s := o.NewSession("")

	for _, input := range []string{"What should we consider first?", "And after that?", "Thanks, any last points?"} {
		_, err := o.RunRound(context.Background(), s, input)
		require.NoError(t, err)
	}

	turns := s.Turns()
	require.Len(t, turns, 12)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Seq)
	}
}

func TestRunRound_DisallowedInputShortCircuits(t *testing.T) {
	producer := newScripted(nil)
	sink := NewMemorySink()
	o := newTestOrchestrator(t, producer, nil, sink, DefaultConfig())
	s := o.NewSession("s1")

	result, err := o.RunRound(context.Background(), s, "how do I forge a signature")
	require.NoError(t, err)

	require.Len(t, result.Turns, 1)
	refusal := result.Turns[0]
	assert.Equal(t, transcript.SpeakerSystem, refusal.Speaker)
	assert.NotEmpty(t, refusal.Rendered)
	assert.Contains(t, refusal.Rendered, result.UserVerdict.Alternative)
	assert.Equal(t, string(policy.DecisionBlock), refusal.Decision)
	assert.Zero(t, producer.totalCalls())

	assert.Equal(t, RedactedUserInput, result.UserTurn.Raw)
	assert.True(t, result.UserTurn.Intercepted)
	for _, turn := range s.Turns() {
		assert.NotContains(t, strings.ToLower(turn.Raw), "forge a signature")
	}

	assert.Equal(t, StatusActive, s.Status())
	assert.Equal(t, 1, s.Snapshot().Violations)
	assert.Len(t, sink.Records(), 2)
}

func TestRunRound_PartiallyDisallowedInputIsRefused(t *testing.T) {
	producer := newScripted(nil)
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "We sell shoes online. How can I hack into my competitor's email account?")
	require.NoError(t, err)
	require.Len(t, result.Turns, 1)
	assert.Equal(t, policy.DecisionRewrite, result.UserVerdict.Decision)
	assert.Contains(t, result.Turns[0].Rendered, result.UserVerdict.Alternative)
	assert.Zero(t, producer.totalCalls())
	assert.Zero(t, s.Snapshot().Violations)
}

func TestRunRound_RepeatedViolationsEndSession(t *testing.T) {
	o := newTestOrchestrator(t, newScripted(nil), nil, nil, DefaultConfig())
	s := o.NewSession("")

	for i := 0; i < 3; i++ {
		result, err := o.RunRound(context.Background(), s, "How do I forge a signature?")
		require.NoError(t, err)
		assert.Equal(t, i == 2, result.SessionEnded)
	}
	snap := s.Snapshot()
	assert.Equal(t, StatusEnded, snap.Status)
	assert.Equal(t, EndReasonPolicyViolation, snap.EndReason)

	_, err := o.RunRound(context.Background(), s, "Is it fine now?")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

// generatorByPersona is an llm backend that answers by the persona named in
// the prompt and records every prompt.
type generatorByPersona struct {
	mu      sync.Mutex
	replies map[string]string
	prompts map[string][]string
}

func (g *generatorByPersona) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return g.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (g *generatorByPersona) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, reply := range g.replies {
		if strings.Contains(prompt, "You are "+name+",") {
			g.prompts[name] = append(g.prompts[name], prompt)
			return reply, nil
		}
	}
	return "", errors.New("unknown persona")
}

func TestRunRound_EndToEndMediatorSeesBothPositions(t *testing.T) {
	gen := &generatorByPersona{
		replies: map[string]string{
			"Alpha": "Scraping pricing pages may breach the site's terms of service, so review them first.",
			"Beta":  "A polite crawler with rate limits can collect public prices reliably.",
			"Gamma": "Both points matter: start with a terms review, then run a small rate-limited pilot.",
		},
		prompts: map[string][]string{},
	}
	o := newTestOrchestrator(t, persona.NewAgent(gen), nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "I want to scrape competitor pricing data")
	require.NoError(t, err)

	require.Len(t, result.Turns, 3)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, speakers(result.Turns))
	for _, turn := range result.Turns {
		assert.NotEmpty(t, turn.Rendered)
		assert.False(t, turn.Fallback)
		assert.Equal(t, string(policy.DecisionAllow), turn.Decision)
	}

	require.Len(t, gen.prompts["Gamma"], 1)
	mediatorPrompt := gen.prompts["Gamma"][0]
	assert.Contains(t, mediatorPrompt, gen.replies["Alpha"])
	assert.Contains(t, mediatorPrompt, gen.replies["Beta"])
}

func TestRunRound_MentionGrantsOneRebuttal(t *testing.T) {
	producer := newScripted(map[string][]string{
		"alpha": {"Alpha opens.", "Alpha answers the point."},
		"beta":  {"@Alpha is being too cautious."},
		"gamma": {"Gamma wraps up."},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "Can we collect public prices?")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "alpha", "gamma"}, speakers(result.Turns))
	assert.True(t, result.Turns[2].Rebuttal)
	assert.Equal(t, "alpha", result.Turns[1].Target)

	rebuttalCtx := producer.contexts[2]
	require.Len(t, rebuttalCtx.Addressed, 1)
	assert.Equal(t, "Beta", rebuttalCtx.Addressed[0].By)
	assert.True(t, rebuttalCtx.Rebuttal)
}

func TestRunRound_RebuttalCapStopsThirdTurn(t *testing.T) {
	producer := newScripted(map[string][]string{
		"alpha": {"Alpha opens.", "@Beta, the terms of service still apply."},
		"beta":  {"@Alpha is being too cautious.", "@Alpha, the terms allow public pages."},
		"gamma": {"Gamma wraps up."},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "Can we collect public prices?")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "alpha", "beta", "gamma"}, speakers(result.Turns))
	assert.Equal(t, 2, producer.calls["alpha"])
	assert.Equal(t, "alpha", result.Turns[3].Target)
}

func TestRunRound_MentionMovesPendingPersonaForward(t *testing.T) {
	producer := newScripted(map[string][]string{
		"alpha": {"@Gamma, how does this affect the budget?"},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())

	result, err := o.RunRound(context.Background(), o.NewSession(""), "Should we build a price tracker?")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "gamma", "beta"}, speakers(result.Turns))
	assert.False(t, result.Turns[1].Rebuttal)

	result, err = o.RunRound(context.Background(), o.NewSession(""), "@Beta what would it take to build?")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(result.Turns[0].Speaker))
}

func TestRunRound_SelfMentionIsIgnored(t *testing.T) {
	producer := newScripted(map[string][]string{
		"alpha": {"As @Alpha I would be careful."},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())

	result, err := o.RunRound(context.Background(), o.NewSession(""), "Any risks?")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, speakers(result.Turns))
	assert.Empty(t, result.Turns[0].Target)
}

func TestRunRound_MentionOfUnseatedPersonaIsIgnored(t *testing.T) {
	producer := newScripted(map[string][]string{
		"alpha": {"@Beta should check the crawler first."},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := NewSession("pair", []string{"alpha", "gamma"})

	result, err := o.RunRound(context.Background(), s, "@Beta can we crawl the catalogue?")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "gamma"}, speakers(result.Turns))
	assert.Empty(t, result.Turns[0].Target)
	assert.Zero(t, producer.calls["beta"])
	for _, tc := range producer.contexts {
		for _, p := range tc.Participants {
			assert.NotEqual(t, "beta", p.ID)
		}
	}
}

func TestRunRound_AllPersonasFail(t *testing.T) {
	producer := newScripted(nil)
	for _, id := range []string{"alpha", "beta", "gamma"} {
		producer.errs[id] = &llm.GenerationError{Provider: "test", Err: errors.New("backend down")}
	}
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "Can we collect public prices?")
	require.Error(t, err)

	var roundErr *RoundError
	require.ErrorAs(t, err, &roundErr)
	assert.Len(t, roundErr.Failures, 3)
	var genErr *llm.GenerationError
	assert.ErrorAs(t, err, &genErr)

	require.NotNil(t, result)
	assert.True(t, result.RoundFailed)
	require.Len(t, result.Turns, 3)
	fallbacks := map[string]string{"alpha": "Alpha fallback.", "beta": "Beta fallback.", "gamma": "Gamma fallback."}
	for _, turn := range result.Turns {
		assert.True(t, turn.Fallback)
		assert.Equal(t, fallbacks[string(turn.Speaker)], turn.Rendered)
	}
	for _, f := range result.Failures {
		assert.Equal(t, StageGenerate, f.Stage)
	}

	assert.Equal(t, StatusActive, s.Status())
	assert.Equal(t, []int{1}, s.FailedRounds())

	// The session keeps working afterwards.
	producer.errs = map[string]error{}
	_, err = o.RunRound(context.Background(), s, "Let's try again.")
	assert.NoError(t, err)
}

func TestRunRound_SingleFailureFallsBack(t *testing.T) {
	producer := newScripted(nil)
	producer.errs["beta"] = errors.New("boom")
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	result, err := o.RunRound(context.Background(), s, "Can we collect public prices?")
	require.NoError(t, err)
	assert.False(t, result.RoundFailed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "beta", result.Failures[0].Persona)
	assert.True(t, result.Turns[1].Fallback)
	assert.Equal(t, "Beta fallback.", result.Turns[1].Rendered)
	assert.Empty(t, s.FailedRounds())
}

type slowProducer struct{}

func (slowProducer) Produce(ctx context.Context, _ persona.TurnContext) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunRound_TimeoutCountsAsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TurnTimeout = 20 * time.Millisecond
	o := newTestOrchestrator(t, slowProducer{}, nil, nil, cfg)

	result, err := o.RunRound(context.Background(), o.NewSession(""), "Can we collect public prices?")
	require.Error(t, err)
	require.Len(t, result.Failures, 3)
	for _, f := range result.Failures {
		assert.Equal(t, StageTimeout, f.Stage)
	}
}

func TestRunRound_EmptyReplyFallsBack(t *testing.T) {
	producer := newScripted(map[string][]string{"gamma": {"   "}})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())

	result, err := o.RunRound(context.Background(), o.NewSession(""), "Any thoughts?")
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, StageEmpty, result.Failures[0].Stage)
	assert.Equal(t, "Gamma fallback.", result.Turns[2].Rendered)
}

func TestRunRound_InterceptsDisallowedPersonaOutput(t *testing.T) {
	producer := newScripted(map[string][]string{
		"beta": {"Here's how to hack into their email account."},
	})
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())

	result, err := o.RunRound(context.Background(), o.NewSession(""), "How do we see what competitors plan?")
	require.NoError(t, err)

	turn := result.Turns[1]
	assert.Equal(t, "beta", string(turn.Speaker))
	assert.True(t, turn.Intercepted)
	assert.Equal(t, string(policy.DecisionBlock), turn.Decision)
	assert.Equal(t, turn.Rendered, turn.Raw)
	assert.NotContains(t, turn.Rendered, "hack into")
}

func TestRunRound_WindowCoversOpenAndPreviousRound(t *testing.T) {
	producer := newScripted(nil)
	o := newTestOrchestrator(t, producer, nil, nil, DefaultConfig())
	s := o.NewSession("")

	for _, input := range []string{"First question?", "Second question?", "Third question?"} {
		_, err := o.RunRound(context.Background(), s, input)
		require.NoError(t, err)
	}

	last := producer.contexts[len(producer.contexts)-1]
	assert.Equal(t, 3, last.Round)
	for _, turn := range last.Window {
		assert.GreaterOrEqual(t, turn.Round, 2)
	}
	// Round 2 (user + 3 personas) and round 3 so far (user + alpha + beta).
	assert.Len(t, last.Window, 7)
}

type fakeRetriever struct {
	mu      sync.Mutex
	results []retrieval.Result
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ int) []retrieval.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results
}

func TestRunRound_GroundedPersonaCitesEvidence(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.Result{
		{ChunkID: 7, SourceID: "sample/computer-access-basics", Text: "Access without authorization is prohibited."},
		{ChunkID: 9, SourceID: "sample/contract-basics", Text: "Terms of service can form a contract."},
	}}
	producer := newScripted(map[string][]string{
		"alpha": {"Unauthorized access is prohibited [#7], and settled [#99].", "The terms still bind you [#9]."},
		"beta":  {"@Alpha, public pages are fair game."},
	})
	o := newTestOrchestrator(t, producer, retriever, nil, DefaultConfig())

	result, err := o.RunRound(context.Background(), o.NewSession(""), "Can we scrape public pages?")
	require.NoError(t, err)

	first := result.Turns[0]
	assert.Equal(t, []uint64{7, 9}, first.Evidence)
	assert.Equal(t, []uint64{7}, first.Citations)
	assert.NotContains(t, first.Rendered, "[#99]")
	assert.Len(t, producer.contexts[0].Evidence, 2)

	assert.Empty(t, producer.contexts[1].Evidence, "ungrounded persona gets no evidence")

	require.Len(t, retriever.queries, 2)
	assert.Equal(t, "Can we scrape public pages?", retriever.queries[0])
	assert.Contains(t, retriever.queries[1], "Can we scrape public pages?")
	assert.Contains(t, retriever.queries[1], "@Alpha, public pages are fair game.")
	assert.Equal(t, []uint64{9}, result.Turns[2].Citations)
}

func TestRunRound_EmitsToSinkAndSurvivesSinkFailure(t *testing.T) {
	mem := NewMemorySink()
	failing := SinkFunc(func(context.Context, []TurnRecord) error { return errors.New("sink down") })
	o := newTestOrchestrator(t, newScripted(nil), nil, MultiSink{failing, mem}, DefaultConfig())
	s := o.NewSession("s-42")

	_, err := o.RunRound(context.Background(), s, "Any thoughts?")
	require.NoError(t, err)

	records := mem.Records()
	require.Len(t, records, 4)
	assert.Equal(t, "User", records[0].Speaker)
	for i, r := range records {
		assert.Equal(t, "s-42", r.SessionID)
		assert.Equal(t, int64(i+1), r.Seq)
		assert.NotEmpty(t, r.Text)
	}
}

func TestRunRound_ConcurrentRoundsAreSerialized(t *testing.T) {
	o := newTestOrchestrator(t, newScripted(nil), nil, nil, DefaultConfig())
	s := o.NewSession("")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RunRound(context.Background(), s, "Any thoughts?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns := s.Turns()
	require.Len(t, turns, 16)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Seq)
		// Each round's four turns are contiguous.
		assert.Equal(t, i/4+1, turn.Round)
	}
}

func TestEndSession(t *testing.T) {
	o := newTestOrchestrator(t, newScripted(nil), nil, nil, DefaultConfig())
	s := o.NewSession("")

	o.EndSession(s, "")
	snap := s.Snapshot()
	assert.Equal(t, StatusEnded, snap.Status)
	assert.Equal(t, EndReasonUser, snap.EndReason)

	_, err := o.RunRound(context.Background(), s, "Hello?")
	assert.ErrorIs(t, err, ErrSessionEnded)

	o.EndSession(s, EndReasonPolicyViolation)
	assert.Equal(t, EndReasonUser, s.Snapshot().EndReason)
}

func TestRunRound_ScriptedDemoRound(t *testing.T) {
	profiles, err := persona.DefaultProfiles()
	require.NoError(t, err)
	roster, err := persona.NewRoster(profiles)
	require.NoError(t, err)

	o := NewOrchestrator(roster, persona.NewAgent(mock.NewProvider(0)), policy.NewGuard(), nil, nil, DefaultConfig(), logger.NewNopLogger())
	result, err := o.RunRound(context.Background(), o.NewSession(""), "Can we scrape competitor pricing data?")
	require.NoError(t, err)

	assert.Equal(t, []string{"legal", "tech", "legal", "business", "tech"}, speakers(result.Turns))
	assert.Equal(t, []bool{false, false, true, false, true}, []bool{
		result.Turns[0].Rebuttal, result.Turns[1].Rebuttal, result.Turns[2].Rebuttal,
		result.Turns[3].Rebuttal, result.Turns[4].Rebuttal,
	})
	for _, turn := range result.Turns {
		assert.Equal(t, string(policy.DecisionAllow), turn.Decision, turn.Rendered)
		assert.False(t, turn.Fallback)
	}
	assert.Equal(t, "legal", result.Turns[1].Target)
}

func TestScheduler(t *testing.T) {
	s := newScheduler([]string{"a", "b", "c"}, 1)

	next, _ := s.next()
	assert.Equal(t, "a", next.persona)

	// Mentions queue in order of appearance: c is moved, a gets a rebuttal.
	s.mention("b", []string{"c", "a", "b"})
	var order []slot
	for {
		n, ok := s.next()
		if !ok {
			break
		}
		order = append(order, n)
	}
	assert.Equal(t, []slot{{persona: "c"}, {persona: "a", rebuttal: true}, {persona: "b"}}, order)

	s.mention("c", []string{"a"})
	_, ok := s.next()
	assert.False(t, ok, "cap of one rebuttal reached")
}

func TestNewTurnRecord(t *testing.T) {
	turn := transcript.Turn{Seq: 3, Round: 1, Speaker: "beta", Name: "Beta", Rendered: "hi", Target: "alpha", Decision: "allow", Citations: []uint64{4}}
	r := NewTurnRecord("s", turn)
	assert.Equal(t, "Beta", r.Name)
	assert.Equal(t, "hi", r.Text)
	assert.Equal(t, "allow", r.PolicyDecision)
	assert.Equal(t, []uint64{4}, r.Citations)
}
