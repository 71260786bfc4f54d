// Command ragserver exposes the AnswerPipeline over HTTP: a synchronous
// POST /v1/search and an SSE-streamed POST /v1/search/stream, wiring every
// component (cache, embedding, LLM, lexical, vector, rerank, metadata,
// intent, reformulate, retriever) from one YAML config file. Grounded on
// cmd/api/main.go's struct-based server (embedded logger, CORS middleware,
// NewAPIServer/Start, PORT env var) generalized from its demo protocol
// routes to the pipeline's two real endpoints.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dev.ohada.ragengine/internal/cache"
	"dev.ohada.ragengine/internal/config"
	"dev.ohada.ragengine/internal/embedding"
	"dev.ohada.ragengine/internal/intent"
	"dev.ohada.ragengine/internal/lexical"
	"dev.ohada.ragengine/internal/llm"
	"dev.ohada.ragengine/internal/llm/providers/anthropic"
	"dev.ohada.ragengine/internal/llm/providers/generic"
	"dev.ohada.ragengine/internal/llm/providers/openai"
	"dev.ohada.ragengine/internal/metadata"
	"dev.ohada.ragengine/internal/models"
	"dev.ohada.ragengine/internal/pipeline"
	"dev.ohada.ragengine/internal/reformulate"
	"dev.ohada.ragengine/internal/rerank"
	"dev.ohada.ragengine/internal/retriever"
	"dev.ohada.ragengine/internal/vectorindex"
)

var (
	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragengine_search_requests_total",
		Help: "Total POST /v1/search and /v1/search/stream requests by route and outcome.",
	}, []string{"route", "outcome"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragengine_search_duration_seconds",
		Help:    "Wall-clock duration of a completed search request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Server wires the HTTP transport around one Pipeline, per cmd/api's
// APIServer pattern.
type Server struct {
	port     string
	logger   *logrus.Logger
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// NewServer constructs every component from cfg and returns a Server ready
// to Start. Components whose configuration is absent (empty DSN, empty
// vector addr) are wired as nil and the corresponding pipeline stage
// degrades gracefully, per each component's own documented fallback.
func NewServer(port string, cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	entry := logrus.NewEntry(logger)
	srv := &Server{port: port, logger: logger}

	cacheTier := cache.New(cache.Config{
		L1Capacity: cfg.Cache.L1Capacity,
		RedisURL:   cfg.Cache.RedisURL,
		DiskPath:   cfg.Cache.DiskPath,
	}, entry)
	srv.closers = append(srv.closers, cacheTier.Close)

	embedder := buildEmbedder(cfg, entry)
	llmManager := buildLLMManager(cfg, entry)

	var lexicalIx *lexical.Index
	var metadataDB *sql.DB
	if cfg.Metadata.DSN != "" {
		db, err := sql.Open("pgx", cfg.Metadata.DSN)
		if err != nil {
			return nil, fmt.Errorf("ragserver: open metadata store: %w", err)
		}
		metadataDB = db
		srv.closers = append(srv.closers, db.Close)
		lexicalIx = lexical.New(cfg.Lexical.IndexDir, entry, passageSource(db))
	}

	var vectorIx *vectorindex.Index
	if cfg.VectorIndex.Addr != "" {
		idx, err := vectorindex.New(cfg.VectorIndex.Addr, cfg.VectorIndex.APIKey)
		if err != nil {
			return nil, fmt.Errorf("ragserver: dial vector index: %w", err)
		}
		vectorIx = idx
		srv.closers = append(srv.closers, idx.Close)
	}

	reranker := rerank.New(&rerank.Config{
		Model:     cfg.Rerank.Model,
		Endpoint:  cfg.Rerank.Endpoint,
		APIKey:    cfg.Rerank.APIKey,
		Timeout:   cfg.Rerank.Timeout,
		BatchSize: cfg.Rerank.BatchSize,
	}, entry)

	var enricher *metadata.Enricher
	if metadataDB != nil {
		enricher = metadata.New(metadataDB, entry)
	}

	classifier := intent.New(llmManager, entry)
	reformulator := reformulate.New(llmManager, entry)

	var retr *retriever.Retriever
	if lexicalIx != nil || vectorIx != nil {
		retr = retriever.New(embedder, searcherOrNil(lexicalIx), vectorSearcherOrNil(vectorIx), reranker, enricherOrNil(enricher), cfg.Retriever.BoostRules, entry)
	}

	srv.pipeline = pipeline.New(cacheTier, classifier, reformulator, retr, llmManager, cfg.Persona, cfg.Cache.AnswerTTL, entry)
	return srv, nil
}

// searcherOrNil/vectorSearcherOrNil/enricherOrNil convert a possibly-nil
// concrete pointer into a possibly-nil interface value, avoiding the
// classic non-nil-interface-wrapping-nil-pointer trap when no lexical
// index, vector index, or metadata store is configured.
func searcherOrNil(idx *lexical.Index) retriever.LexicalSearcher {
	if idx == nil {
		return nil
	}
	return idx
}

func vectorSearcherOrNil(idx *vectorindex.Index) retriever.VectorSearcher {
	if idx == nil {
		return nil
	}
	return idx
}

func enricherOrNil(e *metadata.Enricher) retriever.MetadataEnricher {
	if e == nil {
		return nil
	}
	return e
}

// passageSource builds the lexical index's lazy corpus loader over the
// metadata store: every latest passage belonging to corpus (or every
// latest passage, for the "combined" corpus), grounded on
// postgres_metadata_enricher.py's is_latest convention.
func passageSource(db *sql.DB) func(ctx context.Context, corpus string) ([]models.Passage, error) {
	const query = `SELECT id, text, collection, sub_collection, acte_uniforme, livre,
		partie, chapitre, section, sous_section, article, alinea, status, version
		FROM passages WHERE is_latest = true AND ($1 = 'combined' OR collection = $1)`

	return func(ctx context.Context, corpus string) ([]models.Passage, error) {
		rows, err := db.QueryContext(ctx, query, corpus)
		if err != nil {
			return nil, fmt.Errorf("passage source: query corpus %q: %w", corpus, err)
		}
		defer rows.Close()

		var passages []models.Passage
		for rows.Next() {
			var p models.Passage
			if err := rows.Scan(&p.ID, &p.Text, &p.Hierarchy.Collection, &p.Hierarchy.SubCollection,
				&p.Hierarchy.ActeUniforme, &p.Hierarchy.Livre, &p.Hierarchy.Partie, &p.Hierarchy.Chapitre,
				&p.Hierarchy.Section, &p.Hierarchy.SousSection, &p.Hierarchy.Article, &p.Hierarchy.Alinea,
				&p.Status, &p.Version); err != nil {
				return nil, fmt.Errorf("passage source: scan row: %w", err)
			}
			passages = append(passages, p)
		}
		return passages, rows.Err()
	}
}

// buildEmbedder assembles an embedding.Provider over one backend per
// entry in cfg.Providers.EmbeddingPriority, in order.
func buildEmbedder(cfg *config.Config, logger *logrus.Entry) *embedding.Provider {
	var backends []embedding.Embedder
	for _, name := range cfg.Providers.EmbeddingPriority {
		pc, ok := cfg.Providers.Providers[name]
		if !ok {
			logger.WithField("provider", name).Warn("ragserver: embedding_priority references unknown provider, skipping")
			continue
		}
		backends = append(backends, embedding.NewOpenAIEmbedder(pc.APIKey, pc.BaseURL, pc.Models.Embedding, pc.Parameters.Dimensions))
	}
	return embedding.New(cfg.VectorIndex.Dimensions, logger, backends...)
}

// buildLLMManager assembles an llm.Manager over one backend per entry in
// cfg.Providers.Priority, dispatching on each provider's configured Type.
func buildLLMManager(cfg *config.Config, logger *logrus.Entry) *llm.Manager {
	var providers []llm.Provider
	for _, name := range cfg.Providers.Priority {
		pc, ok := cfg.Providers.Providers[name]
		if !ok {
			logger.WithField("provider", name).Warn("ragserver: providers.priority references unknown provider, skipping")
			continue
		}
		switch pc.Type {
		case "anthropic":
			providers = append(providers, anthropic.NewProvider(pc.APIKey, pc.BaseURL, pc.Models.Response))
		case "openai":
			providers = append(providers, openai.NewProvider(pc.APIKey, pc.BaseURL, pc.Models.Response))
		case "generic":
			providers = append(providers, generic.New(name, pc.BaseURL, pc.APIKey, pc.Models.Default))
		default:
			logger.WithField("provider", name).WithField("type", pc.Type).Warn("ragserver: unknown provider type, skipping")
		}
	}
	return llm.NewManager(logger, providers...)
}

// Start wires the gin router and blocks serving on s.port.
func (s *Server) Start() error {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/search", s.handleSearch)
		v1.POST("/search/stream", s.handleSearchStream)
	}
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.logger.WithField("port", s.port).Info("ragserver: starting")
	return r.Run(":" + s.port)
}

// Close releases every component this Server owns (cache L2 connection,
// metadata DB pool, vector index gRPC connection).
func (s *Server) Close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.WithError(err).Warn("ragserver: close failed during shutdown")
		}
	}
}

type searchRequest struct {
	Query          string           `json:"query"`
	Filters        []models.Filter  `json:"filters"`
	K              int              `json:"k"`
	IncludeSources bool             `json:"include_sources"`
	UseCache       bool             `json:"use_cache"`
}

// handleSearch implements POST /v1/search: the non-streaming state
// machine, returned as one JSON ScoredAnswer.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start := time.Now()
	answer, err := s.pipeline.Search(c.Request.Context(), req.Query, req.Filters, req.K, req.IncludeSources, req.UseCache)
	searchDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		searchRequests.WithLabelValues("search", "error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	searchRequests.WithLabelValues("search", "ok").Inc()
	c.JSON(http.StatusOK, answer)
}

// handleSearchStream implements POST /v1/search/stream: relays
// pipeline.Events as text/event-stream `event:`/`data:` records, per
// spec.md §6, using gin's c.Stream so each write flushes immediately.
func (s *Server) handleSearchStream(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sink := make(chan pipeline.Event, 16)
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		defer close(sink)
		start := time.Now()
		_, err := s.pipeline.SearchStream(ctx, req.Query, req.Filters, req.K, req.IncludeSources, req.UseCache, sink)
		searchDuration.WithLabelValues("search_stream").Observe(time.Since(start).Seconds())
		if err != nil {
			searchRequests.WithLabelValues("search_stream", "error").Inc()
			return
		}
		searchRequests.WithLabelValues("search_stream", "ok").Inc()
	}()

	c.Stream(func(w gin.ResponseWriter) bool {
		e, ok := <-sink
		if !ok {
			return false
		}
		c.SSEvent(string(e.Type), e)
		return true
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().Unix()})
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Debug("ragserver: could not load .env file")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	configPath := os.Getenv("RAGENGINE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Fatal("ragserver: failed to load config")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := NewServer(port, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("ragserver: failed to initialize components")
	}
	defer server.Close()

	if err := server.Start(); err != nil {
		logger.WithError(err).Fatal("ragserver: server stopped with error")
	}
}
