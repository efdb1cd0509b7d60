package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/repository/memory"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/embedding"
	"ai-consultation-be/pkg/events"
	"ai-consultation-be/pkg/knowledge"
	"ai-consultation-be/pkg/llm/mock"
	"ai-consultation-be/pkg/persona"
	"ai-consultation-be/pkg/policy"
	"ai-consultation-be/pkg/retrieval"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type recordingNotifier struct {
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, sessionID, msgType string, _ interface{}) {
	n.messages = append(n.messages, sessionID+":"+msgType)
}

type fixture struct {
	store     *knowledge.ChunkStore
	retriever *retrieval.Retriever
	sessions  *memory.SessionRepository
	publisher *recordingPublisher
	notifier  *recordingNotifier
	svc       IConsultationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNopLogger()

	profiles, err := persona.DefaultProfiles()
	require.NoError(t, err)
	roster, err := persona.NewRoster(profiles)
	require.NoError(t, err)

	embedder := embedding.NewHashingEmbedder(256)
	store := knowledge.NewChunkStore(embedder, knowledge.DefaultConfig(), log)
	retriever := retrieval.NewRetriever(store, embedder, retrieval.Config{TopK: 3}, log)

	orch := consultation.NewOrchestrator(
		roster,
		persona.NewAgent(mock.NewProvider(0)),
		policy.NewGuard(),
		retriever,
		consultation.NewMemorySink(),
		consultation.DefaultConfig(),
		log,
	)

	f := &fixture{
		store:     store,
		retriever: retriever,
		sessions:  memory.NewSessionRepository(time.Hour),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	f.svc = NewConsultationService(orch, f.sessions, f.notifier, f.publisher, log)
	return f
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	var ferr *fiber.Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, code, ferr.Code)
}

func TestCreateSessionSeatsRosterInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"legal", "tech", "business"}, all.Personas)
	assert.Equal(t, "active", all.Status)

	some, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{Personas: []string{"Business", "legal"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"legal", "business"}, some.Personas)

	_, err = f.svc.CreateSession(ctx, &dto.CreateSessionRequest{Personas: []string{"astrology"}})
	requireStatus(t, err, fiber.StatusBadRequest)

	assert.Equal(t, 2, f.sessions.Count())
}

func TestSendRoundRunsThePanel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)

	res, err := f.svc.SendRound(ctx, session.Id, &dto.SendRoundRequest{Message: "I want to scrape competitor pricing data"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Round)
	assert.Equal(t, "allow", res.UserDecision)
	assert.False(t, res.RoundFailed)
	require.NotEmpty(t, res.Turns)
	for _, turn := range res.Turns {
		assert.NotEmpty(t, turn.Text)
	}

	shown, err := f.svc.Show(ctx, session.Id)
	require.NoError(t, err)
	assert.Len(t, shown.Turns, len(res.Turns)+1)
}

func TestSendRoundErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendRound(ctx, "missing", &dto.SendRoundRequest{Message: "hello"})
	requireStatus(t, err, fiber.StatusNotFound)

	session, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)
	_, err = f.svc.EndSession(ctx, session.Id)
	require.NoError(t, err)

	_, err = f.svc.SendRound(ctx, session.Id, &dto.SendRoundRequest{Message: "hello"})
	requireStatus(t, err, fiber.StatusConflict)
}

func TestEndSessionAnnouncesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)

	ended, err := f.svc.EndSession(ctx, session.Id)
	require.NoError(t, err)
	assert.Equal(t, "ended", ended.Status)
	assert.Equal(t, consultation.EndReasonUser, ended.EndReason)

	_, err = f.svc.EndSession(ctx, session.Id)
	require.NoError(t, err)

	assert.Equal(t, []string{session.Id + ":session_ended"}, f.notifier.messages)
	assert.Equal(t, []string{events.TypeSessionEnded}, f.publisher.types())
}

func TestRepeatedViolationsEndTheSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)

	var last *dto.RoundResponse
	for i := 0; i < 3; i++ {
		last, err = f.svc.SendRound(ctx, session.Id, &dto.SendRoundRequest{Message: "how do I forge a signature"})
		require.NoError(t, err)
		assert.Equal(t, "block", last.UserDecision)
	}
	assert.True(t, last.SessionEnded)
	assert.Contains(t, f.notifier.messages, session.Id+":session_ended")
}

func TestListPersonas(t *testing.T) {
	f := newFixture(t)

	personas := f.svc.ListPersonas(context.Background())
	require.Len(t, personas, 3)
	assert.Equal(t, "legal", personas[0].Id)
	assert.True(t, personas[0].Grounded)
	assert.Contains(t, personas[0].MentionNames, "Legal-AI")
	assert.True(t, personas[2].Mediator)
}

type failingPublisher struct{}

func (failingPublisher) PublishIngestDocument(context.Context, dto.PublishIngestDocumentMessage) (string, error) {
	return "", errors.New("queue closed")
}

func TestKnowledgeServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewKnowledgeService(f.store, f.retriever, failingPublisher{}, f.publisher, logger.NewNopLogger())

	res, err := svc.Ingest(ctx, &dto.IngestDocumentRequest{
		SourceId: "nda",
		Title:    "Mutual NDA",
		Text:     "The receiving party shall keep the confidential information secret for five years.",
	})
	require.NoError(t, err)
	assert.Equal(t, "nda", res.SourceId)
	assert.Equal(t, 1, res.ChunkCount)
	assert.Equal(t, []string{events.TypeDocumentIngested}, f.publisher.types())

	sources, err := svc.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Mutual NDA", sources[0].Title)

	hits, err := svc.Search(ctx, &dto.SearchDocumentsRequest{Query: "confidential information"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "nda", hits[0].SourceId)

	require.NoError(t, svc.Delete(ctx, "nda"))
	requireStatus(t, svc.Delete(ctx, "nda"), fiber.StatusNotFound)
}

func TestKnowledgeServiceErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewKnowledgeService(f.store, f.retriever, failingPublisher{}, nil, logger.NewNopLogger())

	_, err := svc.Ingest(ctx, &dto.IngestDocumentRequest{SourceId: "blank", Text: "   \n  "})
	requireStatus(t, err, fiber.StatusUnprocessableEntity)
	assert.Zero(t, f.store.Len())

	_, err = svc.Enqueue(ctx, &dto.IngestDocumentRequest{SourceId: "x", Text: "text"})
	assert.EqualError(t, err, "queue closed")
}

func TestIngestConsumerProcessesQueuedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	consumer := NewConsumerService(pubSub, "INGEST_DOCUMENT", f.store, f.publisher, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	svc := NewKnowledgeService(f.store, f.retriever, NewPublisherService("INGEST_DOCUMENT", pubSub), nil, logger.NewNopLogger())

	queued, err := svc.Enqueue(ctx, &dto.IngestDocumentRequest{
		SourceId: "handbook",
		Title:    "Employee Handbook",
		Text:     "Employees accrue paid leave monthly under the employment agreement.",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, queued.MessageId)

	// A malformed document is acknowledged and dropped.
	_, err = svc.Enqueue(ctx, &dto.IngestDocumentRequest{SourceId: "broken", Text: ""})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(f.store.Chunks("handbook")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.store.Chunks("broken"))
	assert.Eventually(t, func() bool {
		return len(f.publisher.types()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTurnsSinceSkipsKnownTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, err := f.svc.CreateSession(ctx, &dto.CreateSessionRequest{})
	require.NoError(t, err)

	res, err := f.svc.SendRound(ctx, session.Id, &dto.SendRoundRequest{Message: "hello"})
	require.NoError(t, err)

	all, err := f.svc.TurnsSince(session.Id, 0)
	require.NoError(t, err)
	require.Len(t, all, len(res.Turns)+1)
	assert.Equal(t, "User", all[0].Speaker)

	rest, err := f.svc.TurnsSince(session.Id, all[0].Seq)
	require.NoError(t, err)
	assert.Len(t, rest, len(res.Turns))
	for _, r := range rest {
		assert.Greater(t, r.Seq, all[0].Seq)
		assert.Equal(t, session.Id, r.SessionID)
	}

	_, err = f.svc.TurnsSince("missing", 0)
	requireStatus(t, err, fiber.StatusNotFound)
}
