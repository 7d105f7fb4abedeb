// Package okr wires the OKR assistant service.
package okr

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/kart-io/okr-assistant/internal/okr/biz"
	"github.com/kart-io/okr-assistant/internal/okr/handler"
	"github.com/kart-io/okr-assistant/internal/okr/router"
	"github.com/kart-io/okr-assistant/internal/okr/store"
	"github.com/kart-io/okr-assistant/pkg/component/milvus"
	"github.com/kart-io/okr-assistant/pkg/component/redis"
	"github.com/kart-io/okr-assistant/pkg/component/storage"
	"github.com/kart-io/okr-assistant/pkg/infra/app"
	"github.com/kart-io/okr-assistant/pkg/infra/config"
	"github.com/kart-io/okr-assistant/pkg/infra/middleware"
	"github.com/kart-io/okr-assistant/pkg/infra/pool"
	"github.com/kart-io/okr-assistant/pkg/infra/server"
	"github.com/kart-io/okr-assistant/pkg/infra/tracing"
	"github.com/kart-io/okr-assistant/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/okr-assistant/pkg/llm/gemini"
	_ "github.com/kart-io/okr-assistant/pkg/llm/openai"
	"github.com/kart-io/okr-assistant/pkg/llm/resilience"
	"github.com/kart-io/okr-assistant/pkg/observability/metrics"
	chatopts "github.com/kart-io/okr-assistant/pkg/options/chat"
	llmopts "github.com/kart-io/okr-assistant/pkg/options/llm"
	logopts "github.com/kart-io/okr-assistant/pkg/options/logger"
	milvusopts "github.com/kart-io/okr-assistant/pkg/options/milvus"
	poolopts "github.com/kart-io/okr-assistant/pkg/options/pool"
	redisopts "github.com/kart-io/okr-assistant/pkg/options/redis"
	httpopts "github.com/kart-io/okr-assistant/pkg/options/server/http"
	storageopts "github.com/kart-io/okr-assistant/pkg/options/storage"
	tracingopts "github.com/kart-io/okr-assistant/pkg/options/tracing"
)

// Name is the name of the application.
const Name = "okr-server"

const (
	indexerPoolName      = "okr-indexer"
	embeddingCachePrefix = "okr:emb:"
	sessionSweepInterval = time.Minute
	rebuildConcurrency   = 4
)

// Config contains application-related configurations.
type Config struct {
	HTTPOptions    *httpopts.Options
	LogOptions     *logopts.Options
	StorageOptions *storageopts.Options
	RedisOptions   *redisopts.Options
	MilvusOptions  *milvusopts.Options
	LLMOptions     *llmopts.ProviderOptions
	ChatOptions    *chatopts.Options
	PoolOptions    *poolopts.Options
	TracingOptions *tracingopts.Options
}

// Server represents the OKR server.
type Server struct {
	srv      *server.Server
	sessions *biz.SessionRegistry
	indexer  *biz.Indexer
	reindex  bool
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	if err := cfg.LogOptions.Init(cfg.TracingOptions.ServiceName, app.GetVersion()); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting OKR service...", "version", app.GetVersion(), "addr", cfg.HTTPOptions.Addr)

	var hooks []server.ShutdownHook
	cleanup := func() {
		for i := len(hooks) - 1; i >= 0; i-- {
			_ = hooks[i](context.Background())
		}
	}
	fail := func(format string, err error) (*Server, error) {
		cleanup()
		return nil, fmt.Errorf(format, err)
	}

	// 2. 初始化链路追踪
	if cfg.TracingOptions.ServiceVersion == "" {
		cfg.TracingOptions.ServiceVersion = app.GetVersion()
	}
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	hooks = append(hooks, tp.Shutdown)

	// 3. 初始化数据库
	db, err := storage.Open(ctx, cfg.StorageOptions)
	if err != nil {
		return fail("failed to initialize storage: %w", err)
	}
	hooks = append(hooks, func(context.Context) error { return storage.Close(db) })
	st := store.NewStore(db)
	if cfg.StorageOptions.AutoMigrate {
		if err := st.AutoMigrate(); err != nil {
			return fail("failed to migrate database: %w", err)
		}
	}
	logger.Infow("Storage initialized", "driver", cfg.StorageOptions.Driver)

	// 4. 初始化 Redis（可选，用于 Embedding 缓存）
	var rdb *goredis.Client
	if cfg.RedisOptions.Enabled {
		rdb, err = redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			logger.Warnw("Redis unavailable, embedding cache disabled", "error", err.Error())
			rdb = nil
		} else {
			hooks = append(hooks, func(context.Context) error { return rdb.Close() })
			logger.Infow("Redis initialized", "addr", cfg.RedisOptions.Addr())
		}
	}

	// 5. 初始化 LLM 供应商
	embedder, chatProvider, err := cfg.newProviders(rdb)
	if err != nil {
		return fail("failed to initialize model providers: %w", err)
	}

	// 6. 初始化向量索引（可选 Milvus，否则使用数据库内检索）
	var (
		searcher store.Searcher = st.Documents()
		mirror   biz.VectorMirror
	)
	if cfg.MilvusOptions.Enabled {
		client, err := milvus.New(ctx, cfg.MilvusOptions)
		if err != nil {
			return fail("failed to initialize milvus: %w", err)
		}
		hooks = append(hooks, client.Close)
		index, err := store.NewMilvusIndex(ctx, client, cfg.MilvusOptions.Collection, cfg.MilvusOptions.Dimension)
		if err != nil {
			return fail("failed to prepare milvus collection: %w", err)
		}
		searcher, mirror = index, index
		logger.Infow("Milvus index enabled", "collection", cfg.MilvusOptions.Collection)
	}

	// 7. 初始化后台索引
	workers, err := pool.NewPool(indexerPoolName, cfg.PoolOptions)
	if err != nil {
		return fail("failed to create worker pool: %w", err)
	}
	indexer := biz.NewIndexer(st, embedder, mirror)
	notifier := biz.NewNotifier(workers, cfg.LLMOptions.Timeout, indexer)
	hooks = append(hooks,
		func(context.Context) error { return workers.ReleaseTimeout(cfg.HTTPOptions.ShutdownTimeout) },
		func(context.Context) error { notifier.Wait(); return nil },
	)

	// 8. 初始化 Biz 层
	gateway := llm.NewGateway(chatProvider, cfg.ChatOptions.ProviderTimeout)
	sessions := biz.NewSessionRegistry(gateway,
		biz.ChatSessionConfig(cfg.ChatOptions.Model, cfg.ChatOptions.SystemPrompt, cfg.ChatOptions.Temperature),
		cfg.ChatOptions.SessionIdleTTL,
	)
	suggester := biz.NewSuggester(chatProvider, biz.SuggesterConfig{
		Model:        cfg.ChatOptions.SuggestionModel,
		SystemPrompt: cfg.ChatOptions.SuggestionPrompt,
	})
	chat := biz.NewChatService(gateway, sessions, biz.NewRetriever(embedder, searcher), suggester, cfg.ChatOptions.TopK)

	m := metrics.Default()
	if err := m.GaugeFunc("chat", "sessions", "Live chat sessions.", func() float64 { return float64(sessions.Len()) }); err != nil {
		return fail("failed to register session gauge: %w", err)
	}

	// 配置文件变更时调整检索深度
	watcher := config.NewWatcher(viper.GetViper())
	watcher.Subscribe("chat.top-k", func(v *viper.Viper) error {
		k := v.GetInt("chat.top-k")
		if k <= 0 {
			return fmt.Errorf("chat.top-k must be positive, got %d", k)
		}
		chat.SetTopK(k)
		logger.Infow("Retrieval depth updated", "top_k", k)
		return nil
	})
	watcher.Start()

	// 9. 初始化 Handler 层
	handlers := router.Handlers{
		Objective: handler.NewObjectiveHandler(biz.NewObjectiveService(st, notifier, suggester)),
		KeyResult: handler.NewKeyResultHandler(biz.NewKeyResultService(st, notifier)),
		Chatbot:   handler.NewChatbotHandler(chat, cfg.ChatOptions.ConversationHeader, cfg.ChatOptions.ConversationCookie),
		Health:    handler.NewHealthHandler(healthChecks(db, rdb)),
		Metrics:   m.Handler(),
	}

	// 10. 初始化服务器并注册路由
	srv := server.New(cfg.HTTPOptions, cfg.middlewares(m)...)
	router.Register(srv.Engine(), handlers)
	srv.OnShutdown(hooks...)

	logger.Info("OKR service is ready")
	return &Server{
		srv:      srv,
		sessions: sessions,
		indexer:  indexer,
		reindex:  cfg.ChatOptions.ReindexOnStart,
	}, nil
}

// newProviders builds the embedding and chat providers. Both go through a
// circuit breaker; embeddings are cached when rdb is available.
func (cfg *Config) newProviders(rdb *goredis.Client) (llm.EmbeddingProvider, llm.ChatProvider, error) {
	o := cfg.LLMOptions
	rawEmbedder, err := llm.NewEmbeddingProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, nil, errProvider(o.Provider, err)
	}
	rawChat, err := llm.NewChatProvider(o.Provider, o.ToConfigMap())
	if err != nil {
		return nil, nil, errProvider(o.Provider, err)
	}

	var embedder llm.EmbeddingProvider = resilience.WrapEmbedding(rawEmbedder, resilience.DefaultCircuitBreakerConfig())
	if rdb != nil {
		embedder = llm.NewCachedEmbeddingProvider(embedder, rdb, &llm.EmbeddingCacheConfig{
			TTL:       cfg.RedisOptions.EmbeddingTTL,
			KeyPrefix: embeddingCachePrefix,
			Model:     o.EmbedModel,
		})
	}
	chat := resilience.WrapChat(rawChat, resilience.DefaultCircuitBreakerConfig())

	logger.Infow("Model providers initialized",
		"provider", o.Provider,
		"chat_model", cfg.ChatOptions.Model,
		"embed_model", o.EmbedModel,
		"embedding_cache", rdb != nil,
	)
	return embedder, chat, nil
}

func errProvider(name string, err error) error {
	return fmt.Errorf("provider %q: %w", name, err)
}

func (cfg *Config) middlewares(m *metrics.Metrics) []gin.HandlerFunc {
	mws := []gin.HandlerFunc{
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(cfg.HTTPOptions.SkipLogPaths...),
		middleware.Metrics(m, router.MetricsPath),
		middleware.CORS(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTPOptions.AllowOrigins,
			AllowHeaders:     []string{cfg.ChatOptions.ConversationHeader},
			ExposeHeaders:    []string{cfg.ChatOptions.ConversationHeader},
			AllowCredentials: cfg.HTTPOptions.AllowCredentials,
		}),
	}
	if cfg.TracingOptions.Enabled {
		mws = append(mws, middleware.Tracing(cfg.TracingOptions.ServiceName, cfg.HTTPOptions.SkipLogPaths...))
	}
	return mws
}

func healthChecks(db *gorm.DB, rdb *goredis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(func(ctx context.Context) error { return storage.Ping(ctx, db) }),
	}
	if rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	return checks
}

// Run starts background work and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer func() { _ = logger.Flush() }()

	go s.sessions.Run(ctx, sessionSweepInterval)

	if s.reindex {
		go func() {
			n, err := s.indexer.Rebuild(ctx, rebuildConcurrency)
			if err != nil {
				logger.Warnw("Document rebuild stopped", "indexed", n, "error", err.Error())
				return
			}
			logger.Infow("Document rebuild finished", "indexed", n)
		}()
	}

	return s.srv.Run(ctx)
}
