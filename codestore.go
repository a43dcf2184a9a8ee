// Package codestore embeds text through several embedding backends, stores
// the vectors with their source metadata, and answers similarity queries
// over them.
//
// Basic usage:
//
//	client, err := codestore.New(ctx,
//	    codestore.WithSQLite(".codestore/codestore.db"),
//	    codestore.WithOpenAI("text-embedding-3-small", os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	report, err := client.Index(ctx, items)
//
//	results, err := client.Search(ctx, "parse the config file", 10,
//	    search.NewFilters(search.WithOwnerID("repo-1")),
//	)
package codestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/helixml/codestore/application/service"
	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/record"
	"github.com/helixml/codestore/domain/search"
	domainservice "github.com/helixml/codestore/domain/service"
	domaintracking "github.com/helixml/codestore/domain/tracking"
	"github.com/helixml/codestore/infrastructure/persistence"
	"github.com/helixml/codestore/infrastructure/provider"
	"github.com/helixml/codestore/infrastructure/tracking"
	"github.com/helixml/codestore/internal/database"
	"github.com/helixml/codestore/internal/log"
)

// Client errors.
var (
	ErrClientClosed = errors.New("codestore: client is closed")
	// ErrQueryNotEmbedded is returned by Search when no backend produced a
	// vector for the query text.
	ErrQueryNotEmbedded = errors.New("codestore: query could not be embedded")
)

// Client wires the orchestrator, the record store and the retrieval engine
// over one database.
type Client struct {
	db           database.Database
	store        *persistence.RecordStore
	orchestrator *domainservice.Orchestrator
	indexer      *domainservice.Indexer
	retrieval    *service.Retrieval
	registry     *prometheus.Registry
	hasLocal     bool
	closers      []io.Closer
	logger       *slog.Logger
	closed       atomic.Bool
}

// New creates a Client. The database is opened and migrated; backends are
// built from the configuration plus any added with WithBackend.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	app := cfg.app

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Everything registered here is released if construction fails.
	closers := append([]io.Closer(nil), cfg.closers...)
	var db database.Database
	opened := false
	abort := func(err error) (*Client, error) {
		errs := []error{err}
		for _, closer := range closers {
			if errClose := closer.Close(); errClose != nil {
				errs = append(errs, errClose)
			}
		}
		if opened {
			if errClose := db.Close(); errClose != nil {
				errs = append(errs, fmt.Errorf("close database: %w", errClose))
			}
		}
		if len(errs) == 1 {
			return nil, err
		}
		return nil, errors.Join(errs...)
	}

	strategy, err := embedding.ParseStrategy(app.Strategy())
	if err != nil {
		return abort(embedding.NewConfigurationError(err))
	}
	budget, err := embedding.NewBudget(app.MaxBatchSize(), app.MaxBatchTokens())
	if err != nil {
		return abort(embedding.NewConfigurationError(err))
	}
	classifier, routing, err := contentRouting(app.Routing())
	if err != nil {
		return abort(embedding.NewConfigurationError(err))
	}

	endpoints, hasLocal, err := buildEndpoints(app, cfg.endpoints)
	if err != nil {
		return abort(embedding.NewConfigurationError(err))
	}
	if len(embedding.EnabledByPriority(endpoints)) == 0 {
		logger.Warn("no enabled embedding backends, generation will fail until one is configured")
	}

	metrics, err := tracking.NewMetricsObserver(registry)
	if err != nil {
		return abort(fmt.Errorf("register metrics: %w", err))
	}

	if err := app.EnsureDataDir(); err != nil {
		return abort(fmt.Errorf("create data dir: %w", err))
	}
	db, err = database.NewDatabase(ctx, app.DBURL(), database.WithLogger(logger))
	if err != nil {
		return abort(fmt.Errorf("open database: %w", err))
	}
	opened = true
	if err := persistence.AutoMigrate(ctx, db, app.VectorDimension()); err != nil {
		return abort(fmt.Errorf("auto migrate: %w", err))
	}

	failureLog := tracking.NewCooldown(tracking.NewLoggingObserver(logger), app.FailureLogInterval())
	closers = append([]io.Closer{failureLog}, closers...)
	observer := tracking.NewFanout(append([]domaintracking.Observer{metrics, failureLog}, cfg.observers...)...)

	store, err := persistence.NewRecordStore(db, app.VectorDimension(),
		persistence.WithRetryPolicy(persistence.NewRetryPolicy(app.StoreRetryAttempts(), app.StoreRetryBaseDelay())),
		persistence.WithStoreObserver(observer),
		persistence.WithStoreLogger(logger),
	)
	if err != nil {
		return abort(fmt.Errorf("create record store: %w", err))
	}

	names := make([]string, len(endpoints))
	for i, e := range endpoints {
		names[i] = e.Name()
	}
	invoker := domainservice.NewInvoker(embedding.NewStats(names...),
		domainservice.WithInvokeTimeout(app.EmbeddingTimeout()),
		domainservice.WithBackoff(app.BackoffBase(), domainservice.DefaultBackoffCap),
		domainservice.WithInvokerObserver(observer),
		domainservice.WithInvokerLogger(logger),
	)
	orchestrator := domainservice.NewOrchestrator(endpoints,
		domainservice.WithStrategy(strategy),
		domainservice.WithBudget(budget),
		domainservice.WithContentRouting(classifier, routing),
		domainservice.WithInvoker(invoker),
		domainservice.WithObserver(observer),
		domainservice.WithLogger(logger),
	)

	indexer, err := domainservice.NewIndexer(orchestrator, store,
		domainservice.WithDimension(app.VectorDimension()),
		domainservice.WithIndexerLogger(logger),
	)
	if err != nil {
		return abort(fmt.Errorf("create indexer: %w", err))
	}

	retrieval := service.NewRetrieval(store, store,
		service.WithOversample(app.Retrieval().Oversample()),
		service.WithRanker(search.NewRanker(rankConfig(app.Retrieval()))),
		service.WithRetrievalObserver(observer),
		service.WithRetrievalLogger(logger),
	)

	logger.LogAttrs(ctx, slog.LevelInfo, "codestore client ready", app.LogAttrs()...)

	return &Client{
		db:           db,
		store:        store,
		orchestrator: orchestrator,
		indexer:      indexer,
		retrieval:    retrieval,
		registry:     registry,
		hasLocal:     hasLocal,
		closers:      closers,
		logger:       logger,
	}, nil
}

// Close releases all resources. Pending throttled failure logs are flushed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.hasLocal {
		if err := provider.CloseLocalRuntime(); err != nil {
			errs = append(errs, fmt.Errorf("close local runtime: %w", err))
		}
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.logger.Info("codestore client closed")
	return errors.Join(errs...)
}

// GenerateEmbeddings embeds texts with the active strategy. The result has one
// entry per text, nil where every attempt for that text failed. An empty
// requestID is replaced with a generated one.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string, requestID string) (embedding.Result, error) {
	if c.closed.Load() {
		return embedding.Result{}, ErrClientClosed
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return c.orchestrator.Generate(log.WithRequestID(ctx, requestID), texts, requestID)
}

// Index embeds and stores items, summaries first, skipping items whose
// content their owner already stored for the same file.
func (c *Client) Index(ctx context.Context, items []domainservice.IndexItem) (domainservice.IndexReport, error) {
	if c.closed.Load() {
		return domainservice.IndexReport{}, ErrClientClosed
	}
	return c.indexer.Index(ctx, items)
}

// Upsert writes records that already carry their vectors.
func (c *Client) Upsert(ctx context.Context, entries []record.Entry) (record.UpsertReport, error) {
	if c.closed.Load() {
		return record.UpsertReport{}, ErrClientClosed
	}
	return c.store.BulkUpsert(ctx, entries)
}

// Delete removes records and their vectors.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.store.BulkDelete(ctx, ids)
}

// LatestHashesByFile maps each file of owner to its most recent file hash.
func (c *Client) LatestHashesByFile(ctx context.Context, ownerID string) (map[string]string, error) {
	return c.store.LatestHashesByFile(ctx, ownerID)
}

// ChunkHashesForFile returns the content hashes stored for a file.
func (c *Client) ChunkHashesForFile(ctx context.Context, filePath string) (map[string]struct{}, error) {
	return c.store.ChunkHashesForFile(ctx, filePath)
}

// ChunkHashesForOwnerFile returns the content hashes owner stored for a file.
func (c *Client) ChunkHashesForOwnerFile(ctx context.Context, ownerID, filePath string) (map[string]struct{}, error) {
	return c.store.ChunkHashesForOwnerFile(ctx, ownerID, filePath)
}

// FilePathsForOwner lists the files stored for owner.
func (c *Client) FilePathsForOwner(ctx context.Context, ownerID string) ([]string, error) {
	return c.store.FilePathsForOwner(ctx, ownerID)
}

// UpdateFileHash records a new file hash on every record of a file.
func (c *Client) UpdateFileHash(ctx context.Context, ownerID, filePath, fileHash string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.store.UpdateFileHash(ctx, ownerID, filePath, fileHash)
}

// Stats aggregates the stored records of owner, or of all owners when empty.
func (c *Client) Stats(ctx context.Context, ownerID string) (record.Stats, error) {
	return c.store.Stats(ctx, ownerID)
}

// Retrieve ranks stored records against a query vector and its text.
func (c *Client) Retrieve(
	ctx context.Context,
	queryVector []float64,
	queryText string,
	topK int,
	filters search.Filters,
) ([]search.Scored, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.retrieval.Retrieve(ctx, queryVector, queryText, topK, filters)
}

// Search embeds queryText and retrieves with the resulting vector.
func (c *Client) Search(ctx context.Context, queryText string, topK int, filters search.Filters) ([]search.Scored, error) {
	result, err := c.GenerateEmbeddings(ctx, []string{queryText}, "")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vectors := result.Embeddings()
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, ErrQueryNotEmbedded
	}
	return c.Retrieve(ctx, vectors[0].Values(), queryText, topK, filters)
}

// BackendStats returns request, success and failure counters per backend.
func (c *Client) BackendStats() []embedding.BackendStats {
	return c.orchestrator.Stats()
}

// Strategy returns the active orchestration strategy.
func (c *Client) Strategy() embedding.Strategy {
	return c.orchestrator.Strategy()
}

// SetStrategy switches the orchestration strategy for later requests.
func (c *Client) SetStrategy(s embedding.Strategy) {
	c.orchestrator.SetStrategy(s)
}

// Metrics returns the registry holding the client's metrics.
func (c *Client) Metrics() prometheus.Gatherer {
	return c.registry
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}
