package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/stratum/internal/audit"
	"github.com/wisbric/stratum/internal/config"
	"github.com/wisbric/stratum/internal/embedding"
	"github.com/wisbric/stratum/internal/facade"
	"github.com/wisbric/stratum/internal/graphstore"
	"github.com/wisbric/stratum/internal/httpserver"
	"github.com/wisbric/stratum/internal/memoryengine"
	"github.com/wisbric/stratum/internal/platform"
	"github.com/wisbric/stratum/internal/policy"
	"github.com/wisbric/stratum/internal/router"
	"github.com/wisbric/stratum/internal/summarycache"
	"github.com/wisbric/stratum/internal/telemetry"
	"github.com/wisbric/stratum/internal/tenant"
	"github.com/wisbric/stratum/internal/vectorindex"
	"github.com/wisbric/stratum/internal/vectorindex/memindex"
	"github.com/wisbric/stratum/internal/vectorindex/mongovector"
	"github.com/wisbric/stratum/internal/vectorindex/pgvectoridx"
	"github.com/wisbric/stratum/internal/vectorindex/pineconeidx"
	"github.com/wisbric/stratum/internal/vectorindex/qdrant"
	"github.com/wisbric/stratum/internal/vectorindex/weaviateidx"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// components bundles every wired collaborator Run needs across modes.
type components struct {
	logger   *slog.Logger
	db       *pgxpool.Pool
	rdb      *redis.Client
	metrics  *prometheus.Registry
	graph    *graphstore.Store
	policyEn *policy.Engine
	memory   *memoryengine.Engine
	cache    *summarycache.Cache
	router   *router.ComplexityRouter
	executor *router.DecompositionExecutor
	trainer  *router.PolicyTrainer
	facade   *facade.Facade
	auditW   *audit.Writer
}

// Run is the main application entry point. It takes the loaded config, connects to
// infrastructure, wires every component, and starts the requested mode
// (api, worker, or seed).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting stratum", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}
	logger.Info("global migrations applied")

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		if err := metricsReg.Register(c); err != nil {
			return fmt.Errorf("registering metrics collector: %w", err)
		}
	}

	c, err := wire(ctx, cfg, logger, db, rdb, metricsReg)
	if err != nil {
		return fmt.Errorf("wiring components: %w", err)
	}
	c.auditW.Start(ctx)
	defer c.auditW.Close()

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, c)
	case "worker":
		return runWorker(ctx, cfg, c)
	case "seed":
		return runSeed(ctx, cfg, c)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// wire constructs every component, selecting the configured VectorIndex
// backend (§4.1, §6) and binding C1 through C7 in dependency order.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) (*components, error) {
	vecBackend, err := buildVectorBackend(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("building vector backend: %w", err)
	}
	vectors := vectorindex.NewResilient(cfg.VectorBackend, vecBackend)

	objects := graphstore.NewFilesystemObjectStore(cfg.GraphSnapshotPrefix)
	graph := graphstore.New(ctx, db, objects, logger, graphstore.Config{
		WriterTimeout:    time.Duration(cfg.GraphWriterTimeoutMS) * time.Millisecond,
		ColdStartBudget:  time.Duration(cfg.GraphColdStartBudgetMS) * time.Millisecond,
		WriterQueueDepth: 256,
	})

	policyEn := policy.New(db)

	embedder, err := embedding.NewHTTPEmbedder(embedding.HTTPConfig{
		Endpoint:  cfg.EmbedderEndpoint,
		APIKey:    cfg.EmbedderAPIKey,
		Model:     cfg.EmbedderModel,
		Dimension: cfg.VectorDimension,
		Timeout:   time.Duration(cfg.EmbedderTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing embedder: %w", err)
	}

	memory := memoryengine.New(vectors, graph, policyEn, embedder, memoryengine.Config{
		MaxContentLength:   cfg.MemoryMaxContentLengthBytes,
		DefaultSearchK:     cfg.MemoryDefaultSearchK,
		MaxSearchK:         cfg.MemoryMaxSearchK,
		DefaultThreshold:   cfg.MemoryDefaultThreshold,
		DedupeSimilarity:   cfg.MemoryDedupeSimilarity,
		PromotionThreshold: cfg.GovernancePromotionThreshold,
		PromoteImportant:   cfg.GovernancePromoteImportant,
	})

	standardSummarizer, err := embedding.NewHTTPSummarizer(embedding.SummarizerConfig{
		Endpoint: cfg.EmbedderEndpoint,
		APIKey:   cfg.EmbedderAPIKey,
		Model:    cfg.EmbedderModel,
	})
	if err != nil {
		return nil, fmt.Errorf("constructing summarizer: %w", err)
	}
	generator := memoryengine.NewSummaryGenerator(memory, standardSummarizer, standardSummarizer)

	cache := summarycache.New(rdb, generator, summarycache.Config{
		TTL:    time.Duration(cfg.SummaryCacheTTLSecs) * time.Second,
		Policy: summarycache.StalenessPolicy(cfg.SummaryStalenessMode),
	})

	routerCfg := router.DefaultConfig()
	routerCfg.Threshold = cfg.RoutingComplexityThreshold
	routerCfg.MaxHops = cfg.RoutingMaxRecursionDepth
	routerCfg.GlobalQueryBudget = cfg.RoutingMaxSubqueries

	complexRouter := router.NewComplexityRouter(routerCfg)
	executor := router.NewDecompositionExecutor(memory, complexRouter, routerCfg)
	trainer := router.NewPolicyTrainer(db, routerCfg)

	auditW := audit.NewWriter(db, logger)

	f := facade.New(facade.Config{
		Memory:   memory,
		Policy:   policyEn,
		Router:   complexRouter,
		Executor: executor,
		Trainer:  trainer,
		Audit:    auditW,
		Logger:   logger,
	})

	return &components{
		logger:   logger,
		db:       db,
		rdb:      rdb,
		metrics:  metricsReg,
		graph:    graph,
		policyEn: policyEn,
		memory:   memory,
		cache:    cache,
		router:   complexRouter,
		executor: executor,
		trainer:  trainer,
		facade:   f,
		auditW:   auditW,
	}, nil
}

// buildVectorBackend selects and constructs the raw (non-resilient)
// VectorIndex implementation named by cfg.VectorBackend.
func buildVectorBackend(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (vectorindex.Index, error) {
	switch cfg.VectorBackend {
	case "", "memindex":
		return memindex.New(cfg.VectorDimension), nil
	case "qdrant":
		return qdrant.New(qdrant.Config{
			BaseURL:   cfg.QdrantURL,
			APIKey:    cfg.QdrantAPIKey,
			Dimension: cfg.VectorDimension,
		})
	case "pgvector":
		return pgvectoridx.New(db, cfg.VectorDimension)
	case "weaviate":
		return weaviateidx.New(weaviateidx.Config{
			Host:      cfg.WeaviateHost,
			Scheme:    cfg.WeaviateScheme,
			APIKey:    cfg.WeaviateAPIKey,
			Dimension: cfg.VectorDimension,
		})
	case "pinecone":
		return pineconeidx.New(pineconeidx.Config{
			BaseURL:   cfg.PineconeHost,
			APIKey:    cfg.PineconeAPIKey,
			Dimension: cfg.VectorDimension,
		})
	case "mongovector":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		return mongovector.New(client, mongovector.Config{
			Database:  cfg.MongoDatabase,
			Dimension: cfg.VectorDimension,
		})
	default:
		return nil, &vectorindex.InvalidBackendConfigError{Backend: cfg.VectorBackend, Reason: "unknown VECTOR_BACKEND"}
	}
}

func runAPI(ctx context.Context, cfg *config.Config, c *components) error {
	srv := httpserver.NewServer(cfg, c.logger, c.db, c.rdb, c.metrics, c.graph)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		c.logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs graph cold-start hydration and a policy reload for
// every configured tenant, then loops on two tickers: the decay sweep
// (with reinforcement pruning) and the retention sweep. It does no
// consolidation and does not persist trainer state.
func runWorker(ctx context.Context, cfg *config.Config, c *components) error {
	c.logger.Info("worker started", "tenants", len(cfg.TenantIDs))

	for _, tenantID := range cfg.TenantIDs {
		if err := c.graph.ColdStart(ctx, tenantID); err != nil {
			c.logger.Error("cold-start hydration failed", "tenant", tenantID, "error", err)
		}
		if err := c.policyEn.Reload(ctx, tenantID); err != nil {
			c.logger.Error("policy reload failed", "tenant", tenantID, "error", err)
		}
	}

	decayCfg := memoryengine.DecayConfig{
		Enabled:          cfg.DecayEnabled,
		HalfLife:         time.Duration(cfg.DecayHalfLifeHours) * time.Hour,
		PruneThreshold:   cfg.DecayPruneThreshold,
		MinAgeForPruning: time.Duration(cfg.DecayMinAgeHours) * time.Hour,
	}

	decayTicker := time.NewTicker(time.Duration(cfg.DecaySweepInterval) * time.Second)
	defer decayTicker.Stop()
	retentionTicker := time.NewTicker(time.Duration(cfg.RetentionSweepPeriod) * time.Second)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("worker stopping")
			return nil
		case <-decayTicker.C:
			for _, tenantID := range cfg.TenantIDs {
				result, err := c.memory.RunDecaySweep(ctx, tenantID, decayCfg)
				if err != nil {
					c.logger.Error("decay sweep failed", "tenant", tenantID, "error", err)
					continue
				}
				c.logger.Info("decay sweep complete", "tenant", tenantID, "scanned", result.Scanned, "pruned", result.Pruned)
			}
		case <-retentionTicker.C:
			retention := time.Duration(cfg.RetentionMaxAgeDays) * 24 * time.Hour
			for _, tenantID := range cfg.TenantIDs {
				removed, err := c.graph.RetentionSweep(ctx, tenantID, retention)
				if err != nil {
					c.logger.Error("retention sweep failed", "tenant", tenantID, "error", err)
					continue
				}
				c.logger.Info("retention sweep complete", "tenant", tenantID, "removed", removed)
			}
		}
	}
}

// runSeed provisions a fresh PostgreSQL schema for every configured
// tenant and applies the tenant migration set against it.
func runSeed(ctx context.Context, cfg *config.Config, c *components) error {
	for _, tenantID := range cfg.TenantIDs {
		schema := tenant.SchemaName(tenantID)
		if _, err := c.db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
			return fmt.Errorf("creating schema for tenant %s: %w", tenantID, err)
		}

		scopedURL := cfg.DatabaseURL + "&search_path=" + schema
		if !containsQuery(cfg.DatabaseURL) {
			scopedURL = cfg.DatabaseURL + "?search_path=" + schema
		}
		if err := platform.RunTenantMigrations(scopedURL, cfg.MigrationsTenantDir); err != nil {
			return fmt.Errorf("seeding tenant %s: %w", tenantID, err)
		}
		c.logger.Info("tenant schema seeded", "tenant", tenantID, "schema", schema)
	}
	return nil
}

func containsQuery(url string) bool {
	for i := range url {
		if url[i] == '?' {
			return true
		}
	}
	return false
}
