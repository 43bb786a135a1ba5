package bootstrap

import (
	"context"
	"log"

	"entrust-concierge-be/internal/config"
	"entrust-concierge-be/internal/controller"
	"entrust-concierge-be/internal/handler"
	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/internal/pkg/serverutils"
	"entrust-concierge-be/internal/repository/implementation"
	"entrust-concierge-be/internal/repository/memory"
	"entrust-concierge-be/internal/repository/redisstore"
	"entrust-concierge-be/internal/service"
	"entrust-concierge-be/internal/websocket"
	"entrust-concierge-be/pkg/availability"
	"entrust-concierge-be/pkg/cadence"
	"entrust-concierge-be/pkg/concierge"
	"entrust-concierge-be/pkg/conversation"
	"entrust-concierge-be/pkg/database"
	"entrust-concierge-be/pkg/events"
	"entrust-concierge-be/pkg/llm"
	"entrust-concierge-be/pkg/llm/factory"

	pktNats "entrust-concierge-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const openRequestsDurable = "concierge-open-requests"

type Container struct {
	// Controllers
	ConciergeController controller.IConciergeController
	ConciergeWsHandler  *handler.ConciergeWsHandler
	VisitorTokens       *serverutils.VisitorTokens

	// Background Services (Exposed for main.go to run)
	ConciergeService service.IConciergeService
	ConsumerService  service.IConsumerService
	WebSocketHub     *websocket.Hub
	Monitor          *availability.Monitor
	Logger           logger.ILogger

	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	pubSub  *gochannel.GoChannel
}

// Infrastructure is everything the container needs from the outside world.
// Optional members (Redis, NATS) are nil when not configured.
type Infrastructure struct {
	Storage   conversation.Storage
	Provider  llm.LLMProvider
	Clock     cadence.Clock
	Redis     *redis.Client
	NatsPub   *pktNats.Publisher
	NatsSub   *pktNats.Subscriber
	Logger    logger.ILogger
	HubLogger logger.ILogger
}

// NewContainer connects the configured infrastructure and assembles the app.
func NewContainer(cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// Redis (optional: hub fan-out and the redis storage driver)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
	}

	// NATS (optional: analytics out, open-chat requests in)
	var natsPub *pktNats.Publisher
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		}
	}

	storage := newStorage(cfg, rdb)

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.LLMBaseURL,
		cfg.LLMAPIKey(),
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", llmProvider.Name(), cfg.Ai.LLMModel)

	return Assemble(cfg, Infrastructure{
		Storage:   storage,
		Provider:  llmProvider,
		Clock:     cadence.SystemClock{},
		Redis:     rdb,
		NatsPub:   natsPub,
		NatsSub:   natsSub,
		Logger:    sysLogger,
		HubLogger: logger.NewIsolatedLogger(cfg.App.HubLogFilePath),
	})
}

func newStorage(cfg *config.Config, rdb *redis.Client) conversation.Storage {
	switch cfg.Database.StorageDriver {
	case config.StorageRedis:
		if rdb == nil {
			log.Fatalf("[FATAL] STORAGE_DRIVER=redis requires REDIS_URL")
		}
		log.Printf("[INFO] Using Conversation Storage: REDIS")
		return redisstore.NewStorageRepository(rdb)
	case config.StoragePostgres:
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.IsProduction(), database.DefaultPool())
		if err != nil {
			log.Fatalf("[FATAL] Unable to connect to GORM DB: %v", err)
		}
		repo := implementation.NewConversationRecordRepository(db)
		if err := repo.Migrate(); err != nil {
			log.Fatalf("[FATAL] Failed to migrate conversation records: %v", err)
		}
		log.Printf("[INFO] Using Conversation Storage: POSTGRES")
		return repo
	default:
		log.Printf("[INFO] Using Conversation Storage: MEMORY")
		return memory.NewStorageRepository()
	}
}

// Assemble wires services, controllers and the event pipeline on top of
// already-connected infrastructure.
func Assemble(cfg *config.Config, infra Infrastructure) *Container {
	sysLogger := infra.Logger
	if sysLogger == nil {
		sysLogger = logger.NewNopLogger()
	}
	hubLogger := infra.HubLogger
	if hubLogger == nil {
		hubLogger = sysLogger
	}

	// Event Bus. Publishing blocks until the consumer acks so websocket
	// frames keep the order the manager emitted them in.
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		watermill.NewStdLogger(false, false),
	)
	publisherService := service.NewPublisherService(cfg.Widget.EventTopic, pubSub, sysLogger)

	wsHub := websocket.NewHub(infra.Redis, hubLogger)

	var analytics service.AnalyticsPublisher
	if infra.NatsPub != nil {
		analytics = infra.NatsPub
	}
	consumerService := service.NewConsumerService(pubSub, cfg.Widget.EventTopic, wsHub, analytics, sysLogger)

	monitor := availability.NewMonitor()
	store := conversation.NewStore(infra.Storage, func(visitorID string, err error) {
		sysLogger.Warn("ConversationStore", "Discarding unreadable session", map[string]interface{}{
			"visitor_id": visitorID,
			"error":      err.Error(),
		})
	})

	conciergeCfg := concierge.DefaultConfig()
	conciergeCfg.Temperature = cfg.Ai.Temperature
	conciergeCfg.TopK = cfg.Ai.TopK
	conciergeCfg.TopP = cfg.Ai.TopP
	conciergeCfg.InviteDelay = cfg.Widget.InviteDelay

	tokens := serverutils.NewVisitorTokens(cfg.Keys.VisitorTokenSecret)
	conciergeService := service.NewConciergeService(concierge.Deps{
		Store:    store,
		Provider: infra.Provider,
		Monitor:  monitor,
		Clock:    infra.Clock,
		Notifier: publisherService,
		Logger:   sysLogger,
	}, conciergeCfg, tokens, cfg.Widget.SessionIdleTTL)

	state := monitor.Init(factory.Credential(cfg.Ai.LLMProvider, cfg.LLMAPIKey(), cfg.Ai.LLMBaseURL))
	sysLogger.Info("Bootstrap", "Concierge availability initialised", map[string]interface{}{
		"provider": infra.Provider.Name(),
		"status":   state.Status(),
	})

	return &Container{
		ConciergeController: controller.NewConciergeController(conciergeService),
		ConciergeWsHandler:  handler.NewConciergeWsHandler(conciergeService, tokens, wsHub, hubLogger),
		VisitorTokens:       tokens,
		ConciergeService:    conciergeService,
		ConsumerService:     consumerService,
		WebSocketHub:        wsHub,
		Monitor:             monitor,
		Logger:              sysLogger,
		natsPub:             infra.NatsPub,
		natsSub:             infra.NatsSub,
		pubSub:              pubSub,
	}
}

// Start launches the background workers: the websocket hub, the event
// consumer and, when NATS is configured, the open-chat subscription.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.ConsumerService.Consume(ctx); err != nil {
		return err
	}

	if c.natsSub != nil {
		subject := events.Subject(events.ConciergeOpenRequested)
		if err := c.natsSub.Subscribe(subject, openRequestsDurable, c.ConciergeService.HandleOpenRequested); err != nil {
			c.Logger.Warn("Bootstrap", "Open-chat subscription unavailable", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

// Close waits for in-flight deliveries, then releases connections.
func (c *Container) Close(ctx context.Context) {
	if err := c.ConciergeService.Shutdown(ctx); err != nil {
		c.Logger.Warn("Bootstrap", "Shutdown interrupted in-flight deliveries", map[string]interface{}{"error": err.Error()})
	}
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	c.pubSub.Close()
	c.Logger.Sync()
}
