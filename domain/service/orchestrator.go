// Package service holds the embedding orchestration and indexing workflows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/helixml/codestore/domain/embedding"
	"github.com/helixml/codestore/domain/tracking"
)

// Orchestrator spreads embedding work over several backends according to
// the active strategy and reassembles results in input order.
type Orchestrator struct {
	endpoints  []embedding.Endpoint
	strategy   embedding.Strategy
	budget     embedding.Budget
	classifier embedding.Classifier
	routing    embedding.Routing
	invoker    *Invoker
	observer   tracking.Observer
	logger     *slog.Logger
	mu         sync.RWMutex
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStrategy sets the initial strategy.
func WithStrategy(s embedding.Strategy) OrchestratorOption {
	return func(o *Orchestrator) { o.strategy = s }
}

// WithBudget sets the batch limits.
func WithBudget(b embedding.Budget) OrchestratorOption {
	return func(o *Orchestrator) { o.budget = b }
}

// WithContentRouting sets the classifier and the backend per content class.
func WithContentRouting(c embedding.Classifier, r embedding.Routing) OrchestratorOption {
	return func(o *Orchestrator) {
		o.classifier = c
		o.routing = r
	}
}

// WithInvoker replaces the default invoker.
func WithInvoker(i *Invoker) OrchestratorOption {
	return func(o *Orchestrator) { o.invoker = i }
}

// WithObserver sets the event observer, also used by the default invoker.
func WithObserver(obs tracking.Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator over endpoints.
func NewOrchestrator(endpoints []embedding.Endpoint, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		endpoints:  append([]embedding.Endpoint(nil), endpoints...),
		strategy:   embedding.DefaultStrategy,
		budget:     embedding.DefaultBudget(),
		classifier: embedding.DefaultClassifier(),
		observer:   tracking.NopObserver{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.invoker == nil {
		names := make([]string, len(o.endpoints))
		for i, e := range o.endpoints {
			names[i] = e.Name()
		}
		o.invoker = NewInvoker(embedding.NewStats(names...),
			WithInvokerObserver(o.observer),
			WithInvokerLogger(o.logger),
		)
	}
	return o
}

// Strategy returns the active strategy.
func (o *Orchestrator) Strategy() embedding.Strategy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.strategy
}

// SetStrategy switches the strategy for subsequent requests.
func (o *Orchestrator) SetStrategy(s embedding.Strategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategy = s
}

// Endpoints returns the configured endpoints.
func (o *Orchestrator) Endpoints() []embedding.Endpoint {
	return append([]embedding.Endpoint(nil), o.endpoints...)
}

// Stats returns request, success and failure counters per backend.
func (o *Orchestrator) Stats() []embedding.BackendStats {
	return o.invoker.Stats().Snapshot()
}

// batchOutcome is what one strategy run produced for one batch.
type batchOutcome struct {
	vectors  []*embedding.Vector
	fallback bool
}

// Generate embeds texts. An empty requestID is replaced with a generated one.
// Individual backend failures become nil entries; errors are returned only
// for a configuration without enabled backends, for cancellation, and when a
// race or failover batch exhausts every backend.
func (o *Orchestrator) Generate(ctx context.Context, texts []string, requestID string) (embedding.Result, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	enabled := embedding.EnabledByPriority(o.endpoints)
	if len(enabled) == 0 {
		return embedding.Result{}, embedding.NewConfigurationError(embedding.ErrNoEnabledBackends)
	}

	if len(texts) == 0 {
		return embedding.NewResult(requestID, []*embedding.Vector{}, 0, "", false), nil
	}

	strategy := o.Strategy()
	start := time.Now()

	vectors := make([]*embedding.Vector, len(texts))
	tokens := 0
	fallback := false

	for _, batch := range o.budget.Partition(texts) {
		if err := ctx.Err(); err != nil {
			return embedding.Result{}, err
		}

		outcome, err := o.run(ctx, strategy, enabled, batch)
		if err != nil {
			first := batch.Indices()[0]
			return embedding.Result{}, fmt.Errorf("%s batch [%d:%d]: %w", strategy, first, first+batch.Len(), err)
		}

		for j, idx := range batch.Indices() {
			vectors[idx] = outcome.vectors[j]
		}
		for _, text := range batch.Texts() {
			tokens += embedding.EstimateTokens(text)
		}
		fallback = fallback || outcome.fallback
	}

	primary := primaryBackend(vectors)

	result := embedding.NewResult(requestID, vectors, tokens, primary, fallback)
	o.observer.OnGeneration(ctx, tracking.Generation{
		RequestID:      requestID,
		Strategy:       string(strategy),
		Items:          result.Len(),
		Succeeded:      result.SuccessCount(),
		Failed:         result.FailureCount(),
		PrimaryBackend: primary,
		FallbackUsed:   fallback,
		Duration:       time.Since(start),
	})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, strategy embedding.Strategy, enabled []embedding.Endpoint, batch embedding.Batch) (batchOutcome, error) {
	texts := batch.Texts()
	switch strategy {
	case embedding.StrategyRace:
		return o.race(ctx, enabled, texts)
	case embedding.StrategyRoundRobin:
		return o.roundRobin(ctx, enabled, batch), nil
	case embedding.StrategyContentAware:
		return o.contentAware(ctx, enabled, texts), nil
	case embedding.StrategyFailover:
		return o.failover(ctx, enabled, texts)
	default:
		return batchOutcome{}, embedding.NewConfigurationError(fmt.Errorf("unknown strategy %q", strategy))
	}
}

// race sends the batch to every backend at once and keeps the first reply
// carrying at least one vector. Slower replies are drained and dropped.
func (o *Orchestrator) race(ctx context.Context, endpoints []embedding.Endpoint, texts []string) (batchOutcome, error) {
	type reply struct {
		vectors []*embedding.Vector
		err     error
	}

	replies := make(chan reply, len(endpoints))
	for _, ep := range endpoints {
		go func() {
			raw, err := o.invoker.Invoke(ctx, ep, texts)
			if err != nil {
				replies <- reply{err: err}
				return
			}
			vectors := o.wrap(ep, raw)
			if countVectors(vectors) == 0 {
				replies <- reply{err: fmt.Errorf("backend %s returned no vectors", ep.Name())}
				return
			}
			replies <- reply{vectors: vectors}
		}()
	}

	errs := make([]error, 0, len(endpoints))
	for range endpoints {
		select {
		case r := <-replies:
			if r.err == nil {
				return batchOutcome{vectors: r.vectors}, nil
			}
			errs = append(errs, r.err)
		case <-ctx.Done():
			return batchOutcome{}, ctx.Err()
		}
	}
	return batchOutcome{}, fmt.Errorf("%w: %w", embedding.ErrAllBackendsFailed, errors.Join(errs...))
}

// roundRobin gives the text at input position i to backend i mod n, so the
// rotation continues across batches, and runs the partitions concurrently.
// A failed partition leaves only its own items empty.
func (o *Orchestrator) roundRobin(ctx context.Context, endpoints []embedding.Endpoint, batch embedding.Batch) batchOutcome {
	partitions := make([][]int, len(endpoints))
	for j, idx := range batch.Indices() {
		b := idx % len(endpoints)
		partitions[b] = append(partitions[b], j)
	}
	return o.dispatch(ctx, endpoints, partitions, batch.Texts())
}

// contentAware classifies each text and sends each class to its routed
// backend. Unknown or disabled routes fall back to the first enabled backend.
func (o *Orchestrator) contentAware(ctx context.Context, endpoints []embedding.Endpoint, texts []string) batchOutcome {
	byClass := map[embedding.ContentClass][]int{}
	for i, text := range texts {
		class := o.classifier.Classify(text)
		byClass[class] = append(byClass[class], i)
	}

	targets := make([]embedding.Endpoint, 0, 2)
	partitions := make([][]int, 0, 2)
	fallback := false
	for _, class := range []embedding.ContentClass{embedding.ClassCode, embedding.ClassText} {
		indices := byClass[class]
		if len(indices) == 0 {
			continue
		}
		ep, routed := routeFor(endpoints, o.routing.Backend(class))
		if !routed {
			fallback = true
		}
		targets = append(targets, ep)
		partitions = append(partitions, indices)
	}

	outcome := o.dispatch(ctx, targets, partitions, texts)
	outcome.fallback = fallback
	return outcome
}

// dispatch runs partitions[k] against endpoints[k] concurrently. Each
// goroutine writes only its own slot. A failing partition does not stop its
// siblings; its items stay nil and the failure is logged once all finish.
func (o *Orchestrator) dispatch(ctx context.Context, endpoints []embedding.Endpoint, partitions [][]int, texts []string) batchOutcome {
	results := make([][]*embedding.Vector, len(endpoints))
	failures := make([]error, len(endpoints))

	var g errgroup.Group
	for k, ep := range endpoints {
		indices := partitions[k]
		if len(indices) == 0 {
			continue
		}
		g.Go(func() error {
			sub := make([]string, len(indices))
			for j, idx := range indices {
				sub[j] = texts[idx]
			}
			raw, err := o.invoker.Invoke(ctx, ep, sub)
			if err != nil {
				failures[k] = err
				return fmt.Errorf("partition for %s: %w", ep.Name(), err)
			}
			results[k] = o.wrap(ep, raw)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for k, failure := range failures {
			if failure == nil {
				continue
			}
			o.logger.WarnContext(ctx, "embedding partition failed",
				slog.String("backend", endpoints[k].Name()),
				slog.Int("items", len(partitions[k])),
				slog.String("error", failure.Error()),
			)
		}
	}

	vectors := make([]*embedding.Vector, len(texts))
	for k := range endpoints {
		if results[k] == nil {
			continue
		}
		for j, idx := range partitions[k] {
			vectors[idx] = results[k][j]
		}
	}
	return batchOutcome{vectors: vectors}
}

// failover tries backends in priority order with the whole batch and stops
// at the first one that embeds at least one item.
func (o *Orchestrator) failover(ctx context.Context, endpoints []embedding.Endpoint, texts []string) (batchOutcome, error) {
	errs := make([]error, 0, len(endpoints))
	for i, ep := range endpoints {
		raw, err := o.invoker.Invoke(ctx, ep, texts)
		if err == nil {
			vectors := o.wrap(ep, raw)
			if countVectors(vectors) > 0 {
				if i > 0 {
					o.logger.InfoContext(ctx, "embedding fell back to lower priority backend",
						slog.String("backend", ep.Name()),
						slog.Int("position", i),
					)
				}
				return batchOutcome{vectors: vectors, fallback: i > 0}, nil
			}
			err = fmt.Errorf("backend %s returned no vectors", ep.Name())
		}
		errs = append(errs, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return batchOutcome{}, ctxErr
		}
	}
	return batchOutcome{}, fmt.Errorf("%w: %w", embedding.ErrAllBackendsFailed, errors.Join(errs...))
}

// wrap converts raw backend output into projected vectors. Empty vectors
// count as failed items.
func (o *Orchestrator) wrap(ep embedding.Endpoint, raw [][]float64) []*embedding.Vector {
	out := make([]*embedding.Vector, len(raw))
	dim := ep.Config().TargetDimension()
	model := ep.Model()
	for i, values := range raw {
		if len(values) == 0 {
			continue
		}
		v := embedding.NewVector(embedding.Project(values, dim), ep.Name(), model)
		out[i] = &v
	}
	return out
}

func routeFor(endpoints []embedding.Endpoint, name string) (embedding.Endpoint, bool) {
	for _, ep := range endpoints {
		if ep.Name() == name {
			return ep, true
		}
	}
	return endpoints[0], name == ""
}

// primaryBackend returns the backend that produced the most vectors. Ties
// go to the backend whose first vector appears earliest in input order.
func primaryBackend(vectors []*embedding.Vector) string {
	counts := make(map[string]int)
	var order []string
	for _, v := range vectors {
		if v == nil {
			continue
		}
		if _, seen := counts[v.Backend()]; !seen {
			order = append(order, v.Backend())
		}
		counts[v.Backend()]++
	}
	primary := ""
	for _, name := range order {
		if primary == "" || counts[name] > counts[primary] {
			primary = name
		}
	}
	return primary
}

func countVectors(vectors []*embedding.Vector) int {
	n := 0
	for _, v := range vectors {
		if v != nil {
			n++
		}
	}
	return n
}
