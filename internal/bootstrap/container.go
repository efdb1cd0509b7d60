package bootstrap

import (
	"context"
	"fmt"

	"ai-consultation-be/internal/config"
	"ai-consultation-be/internal/controller"
	"ai-consultation-be/internal/handler"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/pkg/serverutils"
	"ai-consultation-be/internal/repository/memory"
	"ai-consultation-be/internal/service"
	"ai-consultation-be/internal/websocket"
	"ai-consultation-be/pkg/consultation"
	"ai-consultation-be/pkg/events"
	pktNats "ai-consultation-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ConsultationController controller.IConsultationController
	KnowledgeController    controller.IKnowledgeController
	PersonaController      controller.IPersonaController
	SessionStreamHandler   *handler.SessionStreamHandler

	// AuthMiddleware guards every route but the persona list.
	AuthMiddleware fiber.Handler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	Engine *Engine
	Logger logger.ILogger

	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
	pubSub  *gochannel.GoChannel
	closers []func()
}

func NewContainer(cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	// 1. Core
	engine, err := NewEngine(cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	if err := engine.SeedKnowledge(context.Background()); err != nil {
		return nil, err
	}

	c := &Container{Engine: engine, Logger: sysLogger}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	c.pubSub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermillLogger)
	c.closers = append(c.closers, func() { c.pubSub.Close() })

	// 3. Infrastructure
	// NATS
	var eventPublisher pktNats.EventPublisher
	if cfg.Nats.Enabled {
		c.natsPub, err = pktNats.NewPublisher(cfg.Nats.URL, cfg.Nats.MaxAge, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = c.natsPub
			c.closers = append(c.closers, c.natsPub.Close)
		}
		c.natsSub, err = pktNats.NewSubscriber(cfg.Nats.URL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS subscriber", map[string]interface{}{"error": err.Error()})
			c.natsSub = nil
		} else {
			c.closers = append(c.closers, c.natsSub.Close)
		}
	}

	// Redis
	if cfg.Redis.Enabled {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.Redis.URL}
		}
		c.rdb = redis.NewClient(opt)
		if err := c.rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		c.closers = append(c.closers, func() { c.rdb.Close() })
	}

	// WebSocket Hub
	c.WebSocketHub = websocket.NewHub(c.rdb, sysLogger)

	// 4. Session sink. With NATS the hub is fed by the turn stream, which
	// every instance consumes; without it the hub emits directly.
	transcriptLogger := logger.NewIsolatedLogger(cfg.App.TranscriptLogPath)
	c.closers = append(c.closers, func() { transcriptLogger.Sync() })
	sink := consultation.MultiSink{consultation.NewLogSink(transcriptLogger)}
	if c.natsPub != nil {
		sink = append(sink, pktNats.NewTurnSink(c.natsPub))
	}
	if !c.relaysTurns() {
		sink = append(sink, c.WebSocketHub)
	}
	orchestrator := engine.NewOrchestrator(sink)

	// 5. Services
	sessionRepo := memory.NewSessionRepository(cfg.Consultation.SessionTTL)
	consultationService := service.NewConsultationService(orchestrator, sessionRepo, c.WebSocketHub, eventPublisher, sysLogger)

	publisherService := service.NewPublisherService(cfg.Knowledge.IngestTopic, c.pubSub)
	knowledgeService := service.NewKnowledgeService(engine.Store, engine.Retriever, publisherService, eventPublisher, sysLogger)
	c.ConsumerService = service.NewConsumerService(c.pubSub, cfg.Knowledge.IngestTopic, engine.Store, eventPublisher, sysLogger)

	// 6. Controllers
	c.ConsultationController = controller.NewConsultationController(consultationService)
	c.KnowledgeController = controller.NewKnowledgeController(knowledgeService)
	c.PersonaController = controller.NewPersonaController(consultationService)
	c.SessionStreamHandler = handler.NewSessionStreamHandler(consultationService, c.WebSocketHub, sysLogger)
	c.AuthMiddleware = serverutils.NewJwtMiddleware(cfg.Auth.JWTSecret)

	return c, nil
}

// Start runs the background workers until ctx is cancelled.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ConsumerService.Consume(ctx); err != nil {
		return fmt.Errorf("start ingest consumer: %w", err)
	}

	if c.relaysTurns() {
		// Ephemeral consumer: every instance relays every turn to its own watchers.
		err := c.natsSub.Subscribe(ctx, events.TypeTurnRecorded, "", pktNats.TurnHandler(c.WebSocketHub.Relay))
		if err != nil {
			return fmt.Errorf("subscribe to turn stream: %w", err)
		}
	}
	return nil
}

// Health reports the knowledge base size and which brokers are connected.
func (c *Container) Health() map[string]interface{} {
	return map[string]interface{}{
		"chunks":   c.Engine.Store.Len(),
		"personas": c.Engine.Roster.Len(),
		"nats":     c.natsPub != nil,
		"redis":    c.rdb != nil,
		"watchers": c.WebSocketHub.TotalClients(),
	}
}

// relaysTurns reports whether the hub is fed from the NATS turn stream.
func (c *Container) relaysTurns() bool {
	return c.natsPub != nil && c.natsSub != nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
