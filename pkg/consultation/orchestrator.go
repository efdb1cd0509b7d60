package consultation

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/llm"
	"ai-consultation-be/pkg/persona"
	"ai-consultation-be/pkg/policy"
	"ai-consultation-be/pkg/retrieval"
	"ai-consultation-be/pkg/transcript"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "Orchestrator"

const (
	// RedactedUserInput replaces user input that failed the content policy.
	RedactedUserInput = "[message withheld under the content policy]"
	partialRefusal    = "Part of your message asks for something the panel can't help with, so this round was not run."
)

type Config struct {
	// TurnTimeout bounds one persona generation.
	TurnTimeout time.Duration
	// WindowRounds is how many rounds before the open one a persona sees.
	WindowRounds int
	// RebuttalCap is the number of extra turns a persona may get per round.
	RebuttalCap int
	// MaxUserViolations ends the session after that many blocked inputs.
	// Zero or less never ends it.
	MaxUserViolations int
	// TopK is the evidence count for grounded personas.
	TopK int
}

func DefaultConfig() Config {
	return Config{
		TurnTimeout:       60 * time.Second,
		WindowRounds:      1,
		RebuttalCap:       1,
		MaxUserViolations: 3,
		TopK:              retrieval.DefaultTopK,
	}
}

// Producer is the persona agent contract.
type Producer interface {
	Produce(ctx context.Context, tc persona.TurnContext) (string, error)
}

type Checker interface {
	Check(text string) policy.Verdict
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []retrieval.Result
}

// RoundResult is what one call to RunRound produced.
type RoundResult struct {
	SessionID    string            `json:"sessionId"`
	Round        int               `json:"round"`
	UserTurn     transcript.Turn   `json:"userTurn"`
	Turns        []transcript.Turn `json:"turns"`
	UserVerdict  policy.Verdict    `json:"userVerdict"`
	RoundFailed  bool              `json:"roundFailed"`
	Failures     []PersonaFailure  `json:"failures,omitempty"`
	SessionEnded bool              `json:"sessionEnded"`
}

type Orchestrator struct {
	roster    *persona.Roster
	agent     Producer
	guard     Checker
	retriever Retriever
	sink      Sink
	cfg       Config
	logger    logger.ILogger
	tracer    trace.Tracer
}

// NewOrchestrator wires a consultation engine. retriever and sink may be
// nil: grounded personas then get no evidence and rounds are not emitted.
func NewOrchestrator(roster *persona.Roster, agent Producer, guard Checker, retriever Retriever, sink Sink, cfg Config, log logger.ILogger) *Orchestrator {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultConfig().TurnTimeout
	}
	if cfg.WindowRounds < 0 {
		cfg.WindowRounds = 0
	}
	if cfg.RebuttalCap < 0 {
		cfg.RebuttalCap = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Orchestrator{
		roster:    roster,
		agent:     agent,
		guard:     guard,
		retriever: retriever,
		sink:      sink,
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer("ai-consultation-be/consultation"),
	}
}

func (o *Orchestrator) Roster() *persona.Roster {
	return o.roster
}

// NewSession starts a session with every roster persona active.
func (o *Orchestrator) NewSession(id string) *Session {
	return NewSession(id, o.roster.IDs())
}

// EndSession terminates a session. Ending an ended session is a no-op.
func (o *Orchestrator) EndSession(s *Session, reason string) {
	if reason == "" {
		reason = EndReasonUser
	}
	if s.end(reason) {
		o.logger.Info(module, "Session ended", map[string]interface{}{
			"session_id": s.ID, "reason": reason,
		})
	}
}

// RunRound runs one user input through the panel. When every persona fails
// the populated result is returned together with a *RoundError.
func (o *Orchestrator) RunRound(ctx context.Context, s *Session, userInput string) (*RoundResult, error) {
	ctx, span := o.tracer.Start(ctx, "consultation.round", trace.WithAttributes(
		attribute.String("session.id", s.ID),
	))
	defer span.End()

	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	round, ok := s.beginRound()
	if !ok {
		span.SetStatus(codes.Error, ErrSessionEnded.Error())
		return nil, ErrSessionEnded
	}
	span.SetAttributes(attribute.Int("round", round))

	result := &RoundResult{SessionID: s.ID, Round: round, Turns: []transcript.Turn{}}

	verdict := o.guard.Check(userInput)
	result.UserVerdict = verdict
	if !verdict.Allowed() {
		o.refuseInput(ctx, s, result, verdict)
		span.SetAttributes(attribute.String("policy.decision", string(verdict.Decision)))
		return result, nil
	}

	result.UserTurn = s.append(transcript.Turn{
		Round:    round,
		Speaker:  transcript.SpeakerUser,
		Name:     string(transcript.SpeakerUser),
		Raw:      userInput,
		Rendered: userInput,
		Decision: string(verdict.Decision),
		Reason:   string(verdict.Reason),
	})

	sched := newScheduler(o.activeOrder(s), o.cfg.RebuttalCap)
	sched.mention(string(transcript.SpeakerUser), o.targets(s, userInput, ""))

	successes := 0
	for {
		next, more := sched.next()
		if !more {
			break
		}
		profile, ok := o.roster.Get(next.persona)
		if !ok {
			continue
		}

		turn, failure := o.speak(ctx, s, round, profile, next.rebuttal, userInput)
		result.Turns = append(result.Turns, turn)
		if failure != nil {
			result.Failures = append(result.Failures, *failure)
		} else {
			successes++
		}
		sched.mention(profile.ID, o.targets(s, turn.Rendered, profile.ID))
	}

	o.emit(ctx, s, append([]transcript.Turn{result.UserTurn}, result.Turns...))

	if len(result.Turns) > 0 && successes == 0 {
		result.RoundFailed = true
		s.markFailed(round)
		roundErr := &RoundError{SessionID: s.ID, Round: round, Failures: result.Failures}
		span.RecordError(roundErr)
		span.SetStatus(codes.Error, "all personas failed")
		o.logger.Error(module, "Round failed, every persona fell back", map[string]interface{}{
			"session_id": s.ID, "round": round, "error": roundErr,
		})
		return result, roundErr
	}

	o.logger.Info(module, "Round completed", map[string]interface{}{
		"session_id": s.ID, "round": round, "turns": len(result.Turns), "fallbacks": len(result.Failures),
	})
	return result, nil
}

// refuseInput stores a redacted user turn and one system refusal turn.
func (o *Orchestrator) refuseInput(ctx context.Context, s *Session, result *RoundResult, verdict policy.Verdict) {
	result.UserTurn = s.append(transcript.Turn{
		Round:       result.Round,
		Speaker:     transcript.SpeakerUser,
		Name:        string(transcript.SpeakerUser),
		Raw:         RedactedUserInput,
		Rendered:    RedactedUserInput,
		Decision:    string(verdict.Decision),
		Reason:      string(verdict.Reason),
		Intercepted: true,
	})
	text := verdict.RewrittenText
	if verdict.Decision == policy.DecisionRewrite {
		text = partialRefusal + " " + verdict.Alternative
	}
	refusal := s.append(transcript.Turn{
		Round:    result.Round,
		Speaker:  transcript.SpeakerSystem,
		Name:     string(transcript.SpeakerSystem),
		Raw:      text,
		Rendered: text,
		Decision: string(verdict.Decision),
		Reason:   string(verdict.Reason),
	})
	result.Turns = append(result.Turns, refusal)

	details := map[string]interface{}{
		"session_id": s.ID, "round": result.Round, "decision": verdict.Decision,
		"reason": verdict.Reason, "categories": verdict.Categories,
	}
	if verdict.Decision == policy.DecisionBlock {
		count := s.recordViolation()
		details["violations"] = count
		if o.cfg.MaxUserViolations > 0 && count >= o.cfg.MaxUserViolations {
			o.EndSession(s, EndReasonPolicyViolation)
			result.SessionEnded = true
		}
	}
	o.logger.Warn(module, "User input refused", details)

	o.emit(ctx, s, []transcript.Turn{result.UserTurn, refusal})
}

// speak produces, checks and appends one persona turn. A failed generation
// is replaced by the persona's fallback utterance.
func (o *Orchestrator) speak(ctx context.Context, s *Session, round int, profile persona.Profile, rebuttal bool, userInput string) (transcript.Turn, *PersonaFailure) {
	ctx, span := o.tracer.Start(ctx, "consultation.persona", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("round", round),
		attribute.String("persona", profile.ID),
		attribute.Bool("rebuttal", rebuttal),
	))
	defer span.End()

	window := s.window(round, o.cfg.WindowRounds)
	openRound := roundTurns(window, round)
	addressed := o.addressedTo(openRound, profile.ID)

	var evidence []retrieval.Result
	if profile.Grounded && o.retriever != nil {
		evidence = o.retriever.Retrieve(ctx, groundingQuery(userInput, window, profile.ID), o.cfg.TopK)
		span.SetAttributes(attribute.Int("evidence", len(evidence)))
	}

	tc := persona.TurnContext{
		SessionID:    s.ID,
		Round:        round,
		Profile:      profile,
		Participants: o.participants(s),
		UserInput:    userInput,
		Window:       window,
		Addressed:    addressed,
		Evidence:     evidence,
		Rebuttal:     rebuttal,
	}

	text, failure := o.produce(ctx, tc)
	var cited []knowledge.ChunkID
	if failure == nil {
		text, cited = persona.ExtractCitations(text, evidence)
		if strings.TrimSpace(text) == "" {
			failure = &PersonaFailure{Persona: profile.ID, Stage: StageEmpty, Err: errors.New("reply held only invalid citations")}
		}
	}
	if failure != nil {
		text, cited = profile.Fallback, nil
		span.RecordError(failure)
		o.logger.Warn(module, "Persona failed, using fallback", map[string]interface{}{
			"session_id": s.ID, "round": round, "persona": profile.ID,
			"stage": failure.Stage, "error": failure.Err,
		})
	}

	verdict := o.guard.Check(text)
	rendered := verdict.Text(text)
	raw := text
	if !verdict.Allowed() {
		raw = rendered
		_, cited = persona.ExtractCitations(rendered, evidence)
		o.logger.Warn(module, "Persona turn intercepted", map[string]interface{}{
			"session_id": s.ID, "round": round, "persona": profile.ID,
			"decision": verdict.Decision, "reason": verdict.Reason, "categories": verdict.Categories,
		})
	}
	span.SetAttributes(attribute.String("policy.decision", string(verdict.Decision)))

	var target string
	if ids := o.targets(s, rendered, profile.ID); len(ids) > 0 {
		target = ids[0]
	}

	turn := s.append(transcript.Turn{
		Round:       round,
		Speaker:     transcript.PersonaSpeaker(profile.ID),
		Name:        profile.Name(),
		Raw:         raw,
		Rendered:    rendered,
		Target:      target,
		Decision:    string(verdict.Decision),
		Reason:      string(verdict.Reason),
		Intercepted: !verdict.Allowed(),
		Fallback:    failure != nil,
		Rebuttal:    rebuttal,
		Evidence:    chunkIDs(evidence),
		Citations:   toUint64(cited),
	})
	return turn, failure
}

func (o *Orchestrator) produce(ctx context.Context, tc persona.TurnContext) (string, *PersonaFailure) {
	tctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	text, err := o.agent.Produce(tctx, tc)
	switch {
	case err == nil && strings.TrimSpace(text) != "":
		return strings.TrimSpace(text), nil
	case err == nil:
		return "", &PersonaFailure{Persona: tc.Profile.ID, Stage: StageEmpty, Err: llm.ErrEmptyResponse}
	case errors.Is(err, llm.ErrEmptyResponse):
		return "", &PersonaFailure{Persona: tc.Profile.ID, Stage: StageEmpty, Err: err}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(tctx.Err(), context.DeadlineExceeded):
		return "", &PersonaFailure{Persona: tc.Profile.ID, Stage: StageTimeout, Err: err}
	default:
		return "", &PersonaFailure{Persona: tc.Profile.ID, Stage: StageGenerate, Err: err}
	}
}

func (o *Orchestrator) emit(ctx context.Context, s *Session, turns []transcript.Turn) {
	if o.sink == nil {
		return
	}
	records := make([]TurnRecord, len(turns))
	for i, t := range turns {
		records[i] = NewTurnRecord(s.ID, t)
	}
	// The round already happened; a cancelled request must not drop the records.
	if err := o.sink.Emit(context.WithoutCancel(ctx), records); err != nil {
		o.logger.Warn(module, "Failed to emit turn records", map[string]interface{}{
			"session_id": s.ID, "records": len(records), "error": err.Error(),
		})
	}
}

// activeOrder is the roster order restricted to the session's personas.
func (o *Orchestrator) activeOrder(s *Session) []string {
	active := make(map[string]bool)
	for _, id := range s.Personas() {
		active[id] = true
	}
	var order []string
	for _, id := range o.roster.IDs() {
		if active[id] {
			order = append(order, id)
		}
	}
	return order
}

func (o *Orchestrator) participants(s *Session) []persona.Profile {
	var out []persona.Profile
	for _, id := range o.activeOrder(s) {
		if p, ok := o.roster.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// targets resolves the personas seated in s that text names, excluding self.
func (o *Orchestrator) targets(s *Session, text, self string) []string {
	seated := make(map[string]bool)
	for _, id := range s.Personas() {
		seated[id] = true
	}
	var out []string
	for _, id := range transcript.ResolveMentions(text, o.roster) {
		if id != self && seated[id] {
			out = append(out, id)
		}
	}
	return out
}

// addressedTo lists the turns of the open round that mention id after its
// last turn in that round.
func (o *Orchestrator) addressedTo(turns []transcript.Turn, id string) []persona.Address {
	start := 0
	for i, t := range turns {
		if t.Speaker == transcript.PersonaSpeaker(id) {
			start = i + 1
		}
	}
	var out []persona.Address
	for _, t := range turns[start:] {
		if t.Speaker == transcript.PersonaSpeaker(id) || t.Speaker == transcript.SpeakerSystem {
			continue
		}
		for _, target := range transcript.ResolveMentions(t.Rendered, o.roster) {
			if target == id {
				out = append(out, persona.Address{By: t.Label(), Text: t.Rendered})
				break
			}
		}
	}
	return out
}

// groundingQuery is the user input plus the most recent turn aimed at the
// persona, or failing that the most recent targeted turn in the window.
func groundingQuery(userInput string, window []transcript.Turn, id string) string {
	var targeted *transcript.Turn
	for i := len(window) - 1; i >= 0; i-- {
		t := &window[i]
		if t.Target == "" {
			continue
		}
		if t.Target == id {
			targeted = t
			break
		}
		if targeted == nil {
			targeted = t
		}
	}
	if targeted == nil {
		return userInput
	}
	return userInput + "\n" + targeted.Rendered
}

func roundTurns(window []transcript.Turn, round int) []transcript.Turn {
	for i, t := range window {
		if t.Round == round {
			return window[i:]
		}
	}
	return nil
}

func chunkIDs(results []retrieval.Result) []uint64 {
	if len(results) == 0 {
		return nil
	}
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = uint64(r.ChunkID)
	}
	return out
}

func toUint64(ids []knowledge.ChunkID) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
