package bootstrap

import (
	"context"
	"log"
	"time"

	"deep-research-be/internal/config"
	"deep-research-be/internal/controller"
	"deep-research-be/internal/handler"
	"deep-research-be/internal/pkg/logger"
	"deep-research-be/internal/repository/contract"
	"deep-research-be/internal/repository/implementation"
	"deep-research-be/internal/repository/memory"
	"deep-research-be/internal/service"
	"deep-research-be/internal/websocket"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/llm"
	"deep-research-be/pkg/llm/factory"
	pkgNats "deep-research-be/pkg/nats"
	"deep-research-be/pkg/provider"
	"deep-research-be/pkg/research/search"
	"deep-research-be/pkg/research/stage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// finishedSessionRetention is how long a terminal session stays queryable in
// memory before eviction. Archived copies outlive it in Postgres.
const finishedSessionRetention = 1 * time.Hour

type Container struct {
	// Controllers
	ResearchController controller.IResearchController

	// WebSockets
	WebSocketHub *websocket.Hub

	// Infrastructure handles main.go needs for shutdown
	NatsPublisher  *pkgNats.Publisher
	NatsSubscriber *pkgNats.Subscriber
	Logger         logger.ILogger
}

// NewContainer wires the whole application. db may be nil when Postgres is
// not configured; session archiving is then disabled.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Progress-event bus shared by all sessions
	pubSub := events.NewPubSub(int64(cfg.Research.EventBuffer))

	// 3. LLM Provider
	llmProvider, err := factory.NewLLMProvider(
		cfg.Llm.Provider,
		cfg.Llm.Model,
		cfg.Llm.BaseURL,
		cfg.Keys.OpenAI,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Llm.Provider, cfg.Llm.Model)

	// 4. Search providers. Unconfigured providers are simply not registered;
	// the fan-out executor skips sources it has no provider for.
	providers := buildProviders(cfg)

	fanout := search.NewFanoutExecutor(providers, int64(cfg.Research.ProviderConcurrency), sysLogger)
	scorer := search.NewRelevanceScorer(
		llm.NewRelevanceJudge(llmProvider),
		int64(cfg.Research.ScoringConcurrency),
		sysLogger,
	)

	// 5. Pipeline stages (stateless, shared across sessions)
	planStage := stage.NewPlanStage(llmProvider, sysLogger)
	gatherStage := stage.NewGatherStage(fanout, scorer, sysLogger)
	assessStage := stage.NewAssessStage(sysLogger)
	synthesizeStage := stage.NewSynthesizeStage(llmProvider, sysLogger)

	// 6. Session registry
	sessionRepo := memory.NewSessionRepository(finishedSessionRetention)

	// 7. Infrastructure: NATS
	natsPub, err := pkgNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pkgNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/research_stream.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 8. Archive repository (requires Postgres)
	var archiveRepo contract.ResearchArchiveRepository
	if db != nil {
		archiveRepo = implementation.NewResearchArchiveRepository(db)
	}

	// 9. Services
	researchService := service.NewResearchService(
		sessionRepo,
		archiveRepo,
		pubSub,
		wsHub,
		natsPub,
		planStage, gatherStage, assessStage, synthesizeStage,
		sysLogger,
	)

	// 10. Archive worker (needs both NATS and Postgres)
	if natsSub != nil && archiveRepo != nil {
		archiveHandler := handler.NewSessionArchiveHandler(sessionRepo, archiveRepo, sysLogger)
		if err := archiveHandler.Start(natsSub); err != nil {
			log.Printf("[WARN] Failed to start archive worker: %v", err)
		}
	}

	return &Container{
		ResearchController: controller.NewResearchController(researchService, wsHub, sysLogger),
		WebSocketHub:       wsHub,
		NatsPublisher:      natsPub,
		NatsSubscriber:     natsSub,
		Logger:             sysLogger,
	}
}

func buildProviders(cfg *config.Config) []provider.SearchProvider {
	providerCfg := provider.Config{
		Timeout:    cfg.Research.ProviderTimeout,
		MaxResults: cfg.Research.MaxResultsPerSearch,
	}

	var providers []provider.SearchProvider

	if cfg.Keys.GoogleSearch != "" && cfg.Keys.GoogleSearchCx != "" {
		providers = append(providers, provider.NewGoogleProvider(cfg.Keys.GoogleSearch, cfg.Keys.GoogleSearchCx, providerCfg))
		log.Printf("[INFO] Search provider enabled: google")
	}

	providers = append(providers, provider.NewArxivProvider(providerCfg))
	providers = append(providers, provider.NewDuckDuckGoProvider(providerCfg))

	if cfg.Keys.Bing != "" {
		providers = append(providers, provider.NewBingProvider(cfg.Keys.Bing, providerCfg))
		log.Printf("[INFO] Search provider enabled: bing")
	}

	if ttl := cfg.Research.ProviderCacheTTL; ttl > 0 {
		for i, p := range providers {
			providers[i] = provider.NewCached(p, ttl)
		}
	}
	return providers
}
